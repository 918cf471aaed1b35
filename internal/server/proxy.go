package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// trustedRealIP applies chi's RealIP only to requests whose direct peer is a
// listed proxy. Forwarding headers from other peers are left untouched, so
// the throttle keys on the socket address.
func trustedRealIP(proxies []string, log zerolog.Logger) func(http.Handler) http.Handler {
	prefixes := parseProxies(proxies, log)
	return func(next http.Handler) http.Handler {
		viaProxy := chimw.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(prefixes) > 0 && fromProxy(r.RemoteAddr, prefixes) {
				viaProxy.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseProxies accepts bare addresses and CIDR ranges; bad entries are skipped.
func parseProxies(proxies []string, log zerolog.Logger) []netip.Prefix {
	var out []netip.Prefix
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(p); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			log.Warn().Str("proxy", p).Msg("ignoring invalid TRUSTED_PROXIES entry")
			continue
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out
}

func fromProxy(remoteAddr string, prefixes []netip.Prefix) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
