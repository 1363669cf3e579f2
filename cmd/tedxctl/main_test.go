package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tedxreg/registration/internal/auth"
	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/payment"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestSignCmd(t *testing.T) {
	out, err := run(t, "sign", "order_abc", "pay_1", "--secret", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, payment.Sign("s3cret", "order_abc", "pay_1"), out)
}

func TestTokenCmd(t *testing.T) {
	out, err := run(t, "token", "ops@example.com", "--role", "ADMIN", "--secret", "session", "--ttl", "10m")
	require.NoError(t, err)

	claims, err := auth.NewSessions("session").Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.True(t, claims.HasRole("ADMIN"))
}

func TestTokenCmd_MissingConfig(t *testing.T) {
	_, err := run(t, "token", "ops@example.com", "--config", t.TempDir()+"/missing.yaml")
	assert.Error(t, err)
}

func TestPrintCoupons(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	var out bytes.Buffer
	printCoupons(&out, []domain.Coupon{
		{Code: "EARLY", Discount: 150},
		{Code: "USED", Discount: 100, ConsumedAt: &past},
		{Code: "OLD", Discount: 50, ExpiresAt: &past},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "available")
	assert.Contains(t, lines[2], string(domain.CouponConsumed))
	assert.Contains(t, lines[3], string(domain.CouponExpired))
}
