package dns

import (
	"net"

	"github.com/miekg/dns"

	"github.com/curtisra-gif/os-failover/internal/health"
	"github.com/curtisra-gif/os-failover/internal/model"
)

// Origin is one side of a failover policy: an endpoint plus its
// published health status.
type Origin struct {
	Endpoint model.Endpoint
	Status   *health.Status
}

// Policy is the runtime form of one zone's failover configuration.
// Exactly one primary and one secondary; the primary answers as alias
// A records, the secondary as a plain CNAME.
type Policy struct {
	Zone string // canonical FQDN, trailing dot
	TTL  uint32

	Primary              Origin
	AliasTarget          string
	AliasAddresses       []net.IP
	EvaluateTargetHealth bool
	// AliasStatus is the alias target's own health, the second gate
	// consulted when EvaluateTargetHealth is set.
	AliasStatus *health.Status

	Secondary      Origin
	SecondaryCNAME string // canonical FQDN, trailing dot
	SecondaryTTL   uint32
}

// primaryActive reports whether the primary may answer: its health check
// must be healthy, and when the alias evaluates target health, the alias
// target's check must be healthy too.
func (p *Policy) primaryActive() bool {
	if !p.Primary.Status.Healthy() {
		return false
	}
	if p.EvaluateTargetHealth && p.AliasStatus != nil && !p.AliasStatus.Healthy() {
		return false
	}
	return true
}

// ActiveRole reports which origin currently answers for the zone.
func (p *Policy) ActiveRole() model.Role {
	if p.primaryActive() {
		return model.RolePrimary
	}
	return model.RoleSecondary
}

// ResolvedAnswer is the answer derived for one query. Never stored;
// recomputed from the published health on every query.
type ResolvedAnswer struct {
	Role    model.Role
	Records []dns.RR
}

// Resolver decides, per query, which origin answers. It only ever reads
// last-published health; it never blocks on an in-flight probe.
type Resolver struct {
	policies map[string]*Policy
}

func NewResolver(policies []*Policy) *Resolver {
	m := make(map[string]*Policy, len(policies))
	for _, p := range policies {
		p.Zone = dns.CanonicalName(p.Zone)
		p.SecondaryCNAME = dns.CanonicalName(p.SecondaryCNAME)
		m[p.Zone] = p
	}
	return &Resolver{policies: m}
}

// Lookup returns the policy authoritative for qname, if any.
func (r *Resolver) Lookup(qname string) (*Policy, bool) {
	p, ok := r.policies[dns.CanonicalName(qname)]
	return p, ok
}

// Policies returns all configured policies.
func (r *Resolver) Policies() []*Policy {
	out := make([]*Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	return out
}

// Resolve answers qname under the failover policy: the primary wins
// whenever it is healthy, the secondary answers whenever the primary is
// not, regardless of the secondary's own health. There is no third
// target; secondary failure is a total outage by design.
func (r *Resolver) Resolve(qname string) (ResolvedAnswer, bool) {
	p, ok := r.Lookup(qname)
	if !ok {
		return ResolvedAnswer{}, false
	}
	name := dns.CanonicalName(qname)

	if p.primaryActive() {
		answers := make([]dns.RR, 0, len(p.AliasAddresses))
		for _, ip := range p.AliasAddresses {
			answers = append(answers, &dns.A{
				Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: p.TTL},
				A:   ip,
			})
		}
		return ResolvedAnswer{Role: model.RolePrimary, Records: answers}, true
	}

	return ResolvedAnswer{
		Role: model.RoleSecondary,
		Records: []dns.RR{&dns.CNAME{
			Hdr:    dns.RR_Header{Name: name, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: p.SecondaryTTL},
			Target: p.SecondaryCNAME,
		}},
	}, true
}

// SOA synthesizes the zone's start-of-authority record, used for SOA
// queries and as the authority section on negative answers.
func (p *Policy) SOA() dns.RR {
	return &dns.SOA{
		Hdr:     dns.RR_Header{Name: p.Zone, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: p.TTL},
		Ns:      "ns1." + p.Zone,
		Mbox:    "hostmaster." + p.Zone,
		Serial:  1,
		Refresh: 7200,
		Retry:   900,
		Expire:  1209600,
		Minttl:  p.TTL,
	}
}
