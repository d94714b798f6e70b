package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
)

// IPSourceType defines the source for client IP addresses
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the request's RemoteAddr field
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the X-Forwarded-For header
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header
	IPSourceXRealIP IPSourceType = "x_real_ip"

	// IPSourceCustomHeader uses a custom header specified in the configuration
	IPSourceCustomHeader IPSourceType = "custom_header"
)

// IPConfig defines configuration for IP extraction
type IPConfig struct {
	// Source specifies where to extract the client IP from
	Source IPSourceType

	// CustomHeader is the name of the custom header to use when Source is IPSourceCustomHeader
	CustomHeader string

	// TrustProxy determines whether to trust proxy headers like X-Forwarded-For
	// If false, RemoteAddr will be used as a fallback for all sources
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration
func DefaultIPConfig() *IPConfig {
	return &IPConfig{
		Source:     IPSourceXForwardedFor,
		TrustProxy: true,
	}
}

// ClientIPKey is the registry key holding the client IP.
const ClientIPKey = "client_ip"

// GetClientIP returns the client IP stored by the ClientIP hook, or "".
func GetClientIP(c *common.Context) string {
	ip, _ := common.Value[string](c.Values(), ClientIPKey)
	return ip
}

// ClientIP creates a hook that extracts the client IP from the request and stores it
// in the request registry. A nil config uses DefaultIPConfig.
func ClientIP(config *IPConfig) Middleware {
	if config == nil {
		config = DefaultIPConfig()
	}

	return common.Hook(func(c *common.Context) {
		c.Values().Set(ClientIPKey, extractClientIP(c.Request(), config))
	})
}

func extractClientIP(r *http.Request, config *IPConfig) string {
	var ip string
	if config.TrustProxy {
		switch config.Source {
		case IPSourceXRealIP:
			ip = r.Header.Get("X-Real-IP")
		case IPSourceCustomHeader:
			ip = r.Header.Get(config.CustomHeader)
		case IPSourceRemoteAddr:
			ip = r.RemoteAddr
		default:
			ip = firstForwardedFor(r.Header.Get("X-Forwarded-For"))
		}
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return stripPort(strings.TrimSpace(ip))
}

// firstForwardedFor returns the leftmost (original client) address of an X-Forwarded-For value.
func firstForwardedFor(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// stripPort removes a trailing port. Bare IPv6 addresses are returned unchanged and
// bracketed ones keep their brackets.
func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		if strings.HasPrefix(ip, "[") {
			return "[" + host + "]"
		}
		return host
	}
	return ip
}
