package inkauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP throttling and audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// DeviceFromContext builds a [Device] from the values attached by
// [WithClientIP] and [WithUserAgent].
func DeviceFromContext(ctx context.Context) Device {
	return Device{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// withDevice fills empty device fields from ctx and attaches the result
// back so audit records see the same values.
func withDevice(ctx context.Context, d Device) (context.Context, Device) {
	if d.IP == "" {
		d.IP = clientIPFromContext(ctx)
	} else {
		ctx = WithClientIP(ctx, d.IP)
	}
	if d.UserAgent == "" {
		d.UserAgent = userAgentFromContext(ctx)
	} else {
		ctx = WithUserAgent(ctx, d.UserAgent)
	}
	return ctx, d
}
