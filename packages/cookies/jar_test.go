package cookies

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func future() *time.Time {
	t := time.Now().Add(time.Hour)
	return &t
}

func past() *time.Time {
	t := time.Now().Add(-time.Hour)
	return &t
}

func TestMemoryJar_SetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()
	c := &Cookie{Name: "sid", Value: "1", Domain: ".a.com", Path: "/"}

	changes, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{c})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonExplicit, changes[0].Reason)

	changes, err = jar.SetCookies(ctx, "https://a.com/", []*Cookie{c})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonOverwrite, changes[0].Reason)
	assert.Equal(t, 1, jar.Len())
}

func TestMemoryJar_IdentityIgnoresLeadingDot(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	_, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "sid", Value: "1", Domain: ".a.com", Path: "/"}})
	require.NoError(t, err)
	changes, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "sid", Value: "2", Domain: "A.com", Path: "/"}})
	require.NoError(t, err)

	assert.Equal(t, ReasonOverwrite, changes[0].Reason)
	require.Equal(t, 1, jar.Len())
	assert.Equal(t, "2", jar.Cookies()[0].Value)
}

func TestMemoryJar_ExpiredOverwrite(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	_, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "sid", Value: "1", ExpirationDate: future()}})
	require.NoError(t, err)

	changes, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "sid", Value: "", ExpirationDate: past()}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonExpiredOverwrite, changes[0].Reason)
	assert.True(t, changes[0].Removed)
	assert.Equal(t, 0, jar.Len())
}

func TestMemoryJar_ExpiredNewCookieIsNotStored(t *testing.T) {
	jar := NewMemoryJar()
	changes, err := jar.SetCookies(context.Background(), "https://a.com/", []*Cookie{{Name: "old", Value: "x", ExpirationDate: past()}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonExpired, changes[0].Reason)
	assert.Equal(t, 0, jar.Len())
}

func TestMemoryJar_ListCookies(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	_, err := jar.SetCookies(ctx, "https://api.com/v1", []*Cookie{
		{Name: "root", Value: "r", Domain: "api.com", Path: "/"},
		{Name: "sid", Value: "xyz", Domain: "api.com", Path: "/v1"},
		{Name: "other", Value: "o", Domain: "other.com", Path: "/"},
		{Name: "admin", Value: "a", Domain: "api.com", Path: "/admin"},
	})
	require.NoError(t, err)

	list, err := jar.ListCookies(ctx, "https://api.com/v1/anything")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sid", list[0].Name)
	assert.Equal(t, "root", list[1].Name)
	assert.Equal(t, "sid=xyz; root=r", HeaderValue(list))
}

func TestMemoryJar_ListHostOnly(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	parsed, err := Parse("https://a.com/", "host=1")
	require.NoError(t, err)
	_, err = jar.SetCookies(ctx, "https://a.com/", parsed)
	require.NoError(t, err)

	list, err := jar.ListCookies(ctx, "https://a.com/")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = jar.ListCookies(ctx, "https://www.a.com/")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryJar_ListSkipsSecureOverHTTP(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	_, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "s", Value: "1", Secure: true}})
	require.NoError(t, err)

	list, err := jar.ListCookies(ctx, "http://a.com/")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryJar_ListPurgesExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now

	var seen []Change
	jar := NewMemoryJar(
		WithClock(func() time.Time { return clock }),
		WithChangeListener(func(c Change) { seen = append(seen, c) }),
	)

	exp := now.Add(time.Minute)
	_, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "short", Value: "1", ExpirationDate: &exp}})
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	list, err := jar.ListCookies(ctx, "https://a.com/")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, jar.Len())

	require.Len(t, seen, 2)
	assert.Equal(t, ReasonExplicit, seen[0].Reason)
	assert.Equal(t, ReasonExpired, seen[1].Reason)
}

func TestMemoryJar_DeleteCookies(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	_, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
	})
	require.NoError(t, err)

	changes, err := jar.DeleteCookies(ctx, "https://a.com/", "a")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "a", changes[0].Cookie.Name)
	assert.True(t, changes[0].Removed)
	assert.Equal(t, ReasonExplicit, changes[0].Reason)

	changes, err = jar.DeleteCookies(ctx, "https://a.com/", "")
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.Equal(t, 0, jar.Len())
}

func TestMemoryJar_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now
	jar := NewMemoryJar(WithMaxCookiesPerDomain(2), WithClock(func() time.Time { return clock }))

	for _, name := range []string{"first", "second", "third"} {
		clock = clock.Add(time.Second)
		changes, err := jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: name, Value: "v"}})
		require.NoError(t, err)
		if name == "third" {
			require.Len(t, changes, 2)
			assert.Equal(t, ReasonEvicted, changes[1].Reason)
			assert.Equal(t, "first", changes[1].Cookie.Name)
		}
	}
	assert.Equal(t, 2, jar.Len())
}

func TestMemoryJar_InvalidURL(t *testing.T) {
	jar := NewMemoryJar()
	_, err := jar.ListCookies(context.Background(), "::nope")
	assert.Error(t, err)
}

func TestSQLiteJar_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cookies.db")

	jar, err := OpenSQLiteJar(ctx, path)
	require.NoError(t, err)

	parsed, err := Parse("https://a.com/app", "sid=abc; Path=/; Max-Age=3600; Secure; SameSite=Lax")
	require.NoError(t, err)
	_, err = jar.SetCookies(ctx, "https://a.com/app", parsed)
	require.NoError(t, err)
	_, err = jar.SetCookies(ctx, "https://a.com/app", []*Cookie{{Name: "tmp", Value: "1"}})
	require.NoError(t, err)
	_, err = jar.DeleteCookies(ctx, "https://a.com/app", "tmp")
	require.NoError(t, err)
	require.NoError(t, jar.Close())

	reopened, err := OpenSQLiteJar(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.ListCookies(ctx, "https://a.com/app")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sid", list[0].Name)
	assert.Equal(t, "abc", list[0].Value)
	assert.True(t, list[0].Secure)
	assert.True(t, list[0].HostOnly)
	assert.Equal(t, SameSiteLax, list[0].SameSite)
	require.NotNil(t, list[0].ExpirationDate)
	assert.False(t, list[0].Session)
}

func TestSQLiteJar_FailedWriteLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	var changes []Change
	jar, err := OpenSQLiteJar(ctx, filepath.Join(t.TempDir(), "cookies.db"),
		WithChangeListener(func(c Change) { changes = append(changes, c) }))
	require.NoError(t, err)

	_, err = jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "sid", Value: "1", ExpirationDate: future()}})
	require.NoError(t, err)
	require.Len(t, changes, 1)

	// every later transaction fails
	require.NoError(t, jar.Close())

	_, err = jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "other", Value: "2", ExpirationDate: future()}})
	require.Error(t, err)
	_, err = jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "sid", Value: "changed", ExpirationDate: future()}})
	require.Error(t, err)
	_, err = jar.DeleteCookies(ctx, "https://a.com/", "")
	require.Error(t, err)

	stored := jar.Cookies()
	require.Len(t, stored, 1)
	assert.Equal(t, "sid", stored[0].Name)
	assert.Equal(t, "1", stored[0].Value)
	assert.Len(t, changes, 1, "listeners only hear committed changes")
}

func TestSQLiteJar_PersistsLastAccess(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cookies.db")
	clock := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

	jar, err := OpenSQLiteJar(ctx, path, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	expires := clock.Add(24 * time.Hour)
	_, err = jar.SetCookies(ctx, "https://a.com/", []*Cookie{{Name: "sid", Value: "1", ExpirationDate: &expires}})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	list, err := jar.ListCookies(ctx, "https://a.com/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, jar.Close())

	reopened, err := OpenSQLiteJar(ctx, path, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	defer reopened.Close()

	stored := reopened.Cookies()
	require.Len(t, stored, 1)
	assert.Equal(t, clock.UnixMilli(), stored[0].LastAccess.UnixMilli())
	assert.Equal(t, clock.Add(-time.Minute).UnixMilli(), stored[0].Created.UnixMilli())
}
