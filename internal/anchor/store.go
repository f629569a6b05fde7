package anchor

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/zhouchenh/trustDNS/internal/logger"
)

// Keyset file format, one trust anchor per line: the record in resource
// record presentation format, then a trailing comment " ; STATE:TIMER"
// where TIMER is a unix epoch integer or empty. Lines holding a key that
// is not currently usable as a trust anchor (state other than Valid or
// Missing) are additionally prefixed with "; " so that a plain
// line-oriented consumer treats them as inert comments, while this reader
// still recovers their state. This convention must be preserved for
// interoperability with existing deployments.
const (
	disabledLinePrefix  = "; "
	annotationSeparator = " ; "
)

// WriteFile persists the key set. The file is written to a scoped
// temporary path and atomically renamed into place, so a reader never
// observes a partial write. A failed write is retried once: silently
// losing an update would revert the resolver to stale anchors on restart.
func WriteFile(ks *KeySet, path string) error {
	data := encodeKeySet(ks)
	err := writeAtomic(path, data)
	if err != nil {
		logger.Warning().Err(err).Str("file", path).Msg("keyset write failed, retrying")
		err = writeAtomic(path, data)
	}
	return err
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func encodeKeySet(ks *KeySet) []byte {
	builder := strings.Builder{}
	for _, ta := range ks.Anchors() {
		line := ta.RR.String() + annotationSeparator + encodeAnnotation(ta)
		if !ta.Live() {
			line = disabledLinePrefix + line
		}
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	return []byte(builder.String())
}

func encodeAnnotation(ta *Anchor) string {
	timer := ""
	if ta.Timer != nil {
		timer = strconv.FormatInt(ta.Timer.Unix(), 10)
	}
	return ta.State.String() + ":" + timer
}

// ReadFile reloads a persisted key set. Recovery is best effort: corrupt
// or unparseable lines are skipped, unprefixed lines lacking a
// recognizable annotation default to Valid, and prefixed lines whose
// state cannot be recovered are discarded.
func ReadFile(keying Keying, path string) (*KeySet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ks := NewKeySet()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		disabled := strings.HasPrefix(line, ";")
		if disabled {
			line = strings.TrimSpace(strings.TrimLeft(line, ";"))
		}
		ta := decodeLine(keying, line, disabled)
		if ta == nil {
			continue
		}
		ks.add(ta)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ks, nil
}

func decodeLine(keying Keying, line string, disabled bool) *Anchor {
	rrText := line
	annotation := ""
	if i := strings.Index(line, annotationSeparator); i >= 0 {
		rrText = line[:i]
		annotation = strings.TrimSpace(line[i+len(annotationSeparator):])
	}
	rr, err := dns.NewRR(rrText)
	if err != nil || rr == nil {
		return nil
	}
	switch rr.(type) {
	case *dns.DNSKEY, *dns.DS:
	default:
		return nil
	}

	state, timer, recovered := decodeAnnotation(annotation)
	if !recovered {
		if disabled {
			// A commented-out anchor without a recoverable state is
			// someone else's comment, not ours.
			return nil
		}
		state, timer = StateValid, nil
	}
	return &Anchor{RR: rr, KeyTag: keying.KeyTag(rr), State: state, Timer: timer}
}

func decodeAnnotation(annotation string) (State, *time.Time, bool) {
	if annotation == "" {
		return StateStart, nil, false
	}
	name, timerText, _ := strings.Cut(annotation, ":")
	state, ok := ParseState(strings.TrimSpace(name))
	if !ok {
		return StateStart, nil, false
	}
	timerText = strings.TrimSpace(timerText)
	if timerText == "" {
		return state, nil, true
	}
	epoch, err := strconv.ParseInt(timerText, 10, 64)
	if err != nil {
		return state, nil, true
	}
	t := time.Unix(epoch, 0)
	return state, &t, true
}
