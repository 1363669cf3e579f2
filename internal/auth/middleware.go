package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	claimsKey     = "session_claims"
	sessionCookie = "session"
)

// RequireSession rejects requests without a valid bearer token or session cookie.
func RequireSession(sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(sessionCookie)
		}
		claims, err := sessions.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole must run after RequireSession.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
			return
		}
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

type ctxKey struct{}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*Claims)
	return claims, ok
}

// UnaryServerInterceptor checks the "authorization" metadata on every method
// except the public ones (full method names).
func UnaryServerInterceptor(sessions *Sessions, public ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]struct{}, len(public))
	for _, m := range public {
		open[m] = struct{}{}
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := open[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		var token string
		if vals := md.Get("authorization"); len(vals) > 0 {
			token = bearer(vals[0])
		}
		claims, err := sessions.Parse(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return handler(WithClaims(ctx, claims), req)
	}
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
