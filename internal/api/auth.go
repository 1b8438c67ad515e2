package api

import (
	"context"
	"crypto/subtle"
	"strings"

	"turnero/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permReadAvailability  = "read:availability"
	permReadResources     = "read:resources"
	clientKeyUnknown      = "unknown"
)

// methodPermissions lists the grant each partner-facing method requires.
var methodPermissions = map[string]string{
	methodGetSlots:      permReadAvailability,
	methodListResources: permReadResources,
}

// partner is a configured API key holder.
type partner struct {
	name   string
	secret []byte
	grants map[string]bool
}

// may reports whether the partner holds perm. A partner configured without
// permissions holds all of them.
func (p *partner) may(perm string) bool {
	return perm == "" || len(p.grants) == 0 || p.grants[perm]
}

// AuthInterceptor checks partner API keys and per-partner rate limits on
// gRPC calls. With no keys configured every caller is accepted and limited
// by peer address.
type AuthInterceptor struct {
	keyHeader   string
	extraHeader string
	partners    map[string]*partner
	limiter     *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	partners := make(map[string]*partner, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		p := &partner{name: k.Name, secret: []byte(k.Extra), grants: make(map[string]bool, len(k.Permissions))}
		if p.name == "" {
			p.name = k.Key
		}
		for _, perm := range k.Permissions {
			p.grants[strings.TrimSpace(perm)] = true
		}
		partners[k.Key] = p
	}

	return &AuthInterceptor{
		keyHeader:   headerName(cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader: headerName(cfg.Auth.HeaderExtra, apiExtraHeaderDefault),
		partners:    partners,
		limiter:     newRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		caller := peerAddr(ctx)
		if len(a.partners) > 0 {
			p, err := a.authenticate(ctx)
			if err != nil {
				return nil, err
			}
			if !p.may(methodPermissions[info.FullMethod]) {
				return nil, status.Errorf(codes.PermissionDenied, "partner %q may not call %s", p.name, info.FullMethod)
			}
			caller = "partner:" + p.name
		}

		if !a.limiter.allow(caller) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) authenticate(ctx context.Context) (*partner, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	key := firstValue(md, a.keyHeader)
	extra := firstValue(md, a.extraHeader)
	if key == "" || extra == "" {
		return nil, status.Error(codes.Unauthenticated, "missing api key headers")
	}

	p, ok := a.partners[key]
	if !ok || subtle.ConstantTimeCompare(p.secret, []byte(extra)) != 1 {
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}
	return p, nil
}

func headerName(configured, fallback string) string {
	if h := strings.ToLower(strings.TrimSpace(configured)); h != "" {
		return h
	}
	return fallback
}

func firstValue(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}
