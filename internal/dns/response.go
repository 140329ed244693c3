package dns

import (
	"net"

	"github.com/miekg/dns"
)

// Fallback is the operator-controlled host returned when no edge server
// can take the client.
type Fallback struct {
	Address  net.IP
	Hostname string
}

// NewAnswer builds the reply to r with a single A record mapping name to
// ip. The TTL is zero so resolvers ask again and every query is balanced.
func NewAnswer(r *dns.Msg, name string, ip net.IP) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Question = append([]dns.Question(nil), r.Question...)
	m.Authoritative = false
	m.RecursionAvailable = false
	m.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 0},
		A:   ip.To4(),
	}}
	return m
}

func NewFallbackAnswer(r *dns.Msg, fb Fallback) *dns.Msg {
	return NewAnswer(r, fb.Hostname, fb.Address)
}
