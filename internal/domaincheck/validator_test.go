package domaincheck

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dataregistry/pkg/domain-errors"
)

type fakeResolver struct {
	records map[string][]*net.MX
	err     error
}

func (f *fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[name], nil
}

func resolverWith(domains ...string) *fakeResolver {
	records := make(map[string][]*net.MX)
	for _, d := range domains {
		records[d] = []*net.MX{{Host: "mx." + d, Pref: 10}}
	}
	return &fakeResolver{records: records}
}

func TestValidateAcceptsFreeProviderForIndividuals(t *testing.T) {
	v := New(WithResolver(resolverWith("gmail.com")))
	require.NoError(t, v.Validate(context.Background(), "john@gmail.com"))
}

func TestValidateRejectsMalformedEmail(t *testing.T) {
	v := New(WithoutMXCheck())
	for _, email := range []string{"", "not-an-email", "a@b@c", "@example.com", "john@localhost"} {
		err := v.Validate(context.Background(), email)
		require.Error(t, err, "email %q should be rejected", email)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	}
}

func TestValidateRejectsDisposableDomains(t *testing.T) {
	v := New(WithoutMXCheck())
	for _, email := range []string{
		"a@mailinator.com",
		"b@tempmail.io",
		"c@my.10minutemail.net",
		"d@yopmail.fr",
	} {
		err := v.Validate(context.Background(), email)
		require.Error(t, err, "email %q should be rejected", email)
	}
}

func TestValidateRejectsMissingMX(t *testing.T) {
	v := New(WithResolver(&fakeResolver{records: map[string][]*net.MX{}}))
	err := v.Validate(context.Background(), "john@no-mail.example")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateTreatsResolverErrorAsMissingMX(t *testing.T) {
	v := New(WithResolver(&fakeResolver{err: errors.New("dns timeout")}))
	err := v.Validate(context.Background(), "john@example.com")
	require.Error(t, err)
}

func TestValidateCorporateRejectsFreeProviders(t *testing.T) {
	v := New(WithoutMXCheck())
	err := v.ValidateCorporate(context.Background(), "ops@gmail.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corporate")
}

func TestValidateCorporateAcceptsCompanyDomain(t *testing.T) {
	v := New(WithResolver(resolverWith("acme.com")))
	require.NoError(t, v.ValidateCorporate(context.Background(), "ops@acme.com"))
}

func TestValidateIsCaseInsensitiveOnDomain(t *testing.T) {
	v := New(WithoutMXCheck())
	err := v.ValidateCorporate(context.Background(), "ops@GMAIL.COM")
	require.Error(t, err)
}
