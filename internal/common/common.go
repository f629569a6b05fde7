package common

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"github.com/zhouchenh/trustDNS/internal/logger"
)

func Output(a ...interface{}) {
	_, _ = fmt.Fprintln(logger.Output(), a...)
}

func ErrOutput(a ...interface{}) {
	logger.Error().Msg(fmt.Sprint(a...))
}

func Concatenate(a ...interface{}) string {
	builder := strings.Builder{}
	for _, value := range a {
		builder.WriteString(fmt.Sprint(value))
	}
	return builder.String()
}

func SnakeCaseConcatenate(a ...interface{}) string {
	builder := strings.Builder{}
	for _, value := range a {
		str := fmt.Sprint(value)
		if str == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("_")
		}
		builder.WriteString(str)
	}
	return builder.String()
}

func UpperString(s string) string {
	return strings.ToUpper(s)
}

// CanonicalName lowercases and fqdn-normalizes a domain name. An empty
// name stays empty rather than collapsing onto the root.
func CanonicalName(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	return dns.CanonicalName(name)
}

func IsDomainName(name string) (ok bool) {
	_, ok = dns.IsDomainName(name)
	return
}

func FilterResourceRecords(records []dns.RR, predicate func(rr dns.RR) bool) (result []dns.RR) {
	for _, record := range records {
		if predicate(record) {
			result = append(result, record)
		}
	}
	return
}
