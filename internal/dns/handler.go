package dns

import (
	"net"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/curtisra-gif/os-failover/internal/geo"
	"github.com/curtisra-gif/os-failover/internal/metrics"
	"github.com/curtisra-gif/os-failover/internal/model"
	"github.com/curtisra-gif/os-failover/internal/throttler"
)

// Handler serves authoritative answers for the configured failover zones.
type Handler struct {
	Resolver  *Resolver
	Throttler *throttler.Throttler
	Geo       *geo.Locator
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	clientIP := extractClientIP(w, r)

	reqLogger := h.Logger.With(
		zap.String("client_ip", clientIP.String()),
		zap.Uint16("msg_id", r.Id),
	)
	if country := h.Geo.Country(clientIP); country != "" {
		reqLogger = reqLogger.With(zap.String("client_country", country))
	}

	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Authoritative = true

	for _, q := range r.Question {
		if !h.Throttler.Allow(clientIP.String()) {
			h.Metrics.ThrottledTotal.Inc()
			reqLogger.Warn("rate limit exceeded, slipping with TC bit", zap.String("qname", q.Name))
			msg.Truncated = true // Force legitimate clients to retry via TCP
			_ = w.WriteMsg(msg)
			return
		}

		policy, exists := h.Resolver.Lookup(q.Name)
		if !exists {
			// Not our zone: NXDOMAIN is the limit of this resolver's authority.
			h.Metrics.QueriesTotal.WithLabelValues("unknown", "nxdomain").Inc()
			reqLogger.Debug("query for unknown zone", zap.String("qname", q.Name))
			msg.SetRcode(r, dns.RcodeNameError)
			continue
		}

		switch q.Qtype {
		case dns.TypeA, dns.TypeCNAME:
			answer, _ := h.Resolver.Resolve(q.Name)
			if q.Qtype == dns.TypeCNAME && answer.Role != model.RoleSecondary {
				// Primary answers are A records; an explicit CNAME query
				// gets the zone SOA as a negative answer.
				msg.Ns = append(msg.Ns, policy.SOA())
				h.Metrics.QueriesTotal.WithLabelValues(policy.Zone, "nodata").Inc()
				continue
			}
			msg.Answer = append(msg.Answer, answer.Records...)
			h.Metrics.QueriesTotal.WithLabelValues(policy.Zone, "answered").Inc()
			h.Metrics.AnswersTotal.WithLabelValues(policy.Zone, string(answer.Role)).Inc()
			reqLogger.Info("resolved query",
				zap.String("qname", q.Name),
				zap.String("role", string(answer.Role)),
			)
		case dns.TypeSOA:
			msg.Answer = append(msg.Answer, policy.SOA())
			h.Metrics.QueriesTotal.WithLabelValues(policy.Zone, "answered").Inc()
		default:
			msg.Ns = append(msg.Ns, policy.SOA())
			h.Metrics.QueriesTotal.WithLabelValues(policy.Zone, "nodata").Inc()
			reqLogger.Debug("unhandled qtype", zap.String("qname", q.Name), zap.Uint16("qtype", q.Qtype))
		}
	}

	_ = w.WriteMsg(msg)
}

// extractClientIP prefers the EDNS client-subnet address when present,
// falling back to the transport source address.
func extractClientIP(w dns.ResponseWriter, r *dns.Msg) net.IP {
	if opt := r.IsEdns0(); opt != nil {
		for _, o := range opt.Option {
			if ecs, ok := o.(*dns.EDNS0_SUBNET); ok {
				return ecs.Address
			}
		}
	}
	host, _, _ := net.SplitHostPort(w.RemoteAddr().String())
	return net.ParseIP(host)
}
