package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

type RedisStoreTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *RedisStore
	ctx    context.Context
}

func (s *RedisStoreTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.store = NewRedisStore(s.client, "")
	s.ctx = context.Background()
}

func (s *RedisStoreTestSuite) TearDownTest() {
	_ = s.client.Close()
	s.mr.Close()
}

func (s *RedisStoreTestSuite) TestKeyLayout() {
	s.Require().NoError(s.store.Put(s.ctx, newTestSession(pkgoauth.ProviderGoogle, "a")))
	s.True(s.mr.Exists("getgetleads:session:google"))
}

func (s *RedisStoreTestSuite) TestRefreshableSessionHasNoTTL() {
	s.Require().NoError(s.store.Put(s.ctx, newTestSession(pkgoauth.ProviderGoogle, "a")))
	s.Equal(time.Duration(0), s.mr.TTL("getgetleads:session:google"))
}

func (s *RedisStoreTestSuite) TestNonRefreshableSessionOutlivesAccessToken() {
	session := newTestSession(pkgoauth.ProviderLinkedIn, "a")
	session.RefreshToken = ""
	session.ExpiresAt = time.Now().Add(time.Hour)
	s.Require().NoError(s.store.Put(s.ctx, session))

	ttl := s.mr.TTL("getgetleads:session:linkedin")
	s.Greater(ttl, 59*time.Minute+ExpiredSessionRetention)
	s.LessOrEqual(ttl, time.Hour+ExpiredSessionRetention)

	// The expired record stays readable so the caller can tell expiry from
	// a missing connection.
	s.mr.FastForward(time.Hour + time.Second)
	got, err := s.store.Get(s.ctx, pkgoauth.ProviderLinkedIn)
	s.Require().NoError(err)
	s.Equal("a", got.AccessToken)

	s.mr.FastForward(ExpiredSessionRetention)
	_, err = s.store.Get(s.ctx, pkgoauth.ProviderLinkedIn)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RedisStoreTestSuite) TestAlreadyExpiredSessionGetsRetention() {
	session := newTestSession(pkgoauth.ProviderLinkedIn, "a")
	session.RefreshToken = ""
	session.ExpiresAt = time.Now().Add(-time.Minute)
	s.Require().NoError(s.store.Put(s.ctx, session))

	s.Equal(ExpiredSessionRetention, s.mr.TTL("getgetleads:session:linkedin"))
}

func (s *RedisStoreTestSuite) TestClearOnlyTouchesSessionKeys() {
	s.Require().NoError(s.store.Put(s.ctx, newTestSession(pkgoauth.ProviderGoogle, "g")))
	s.Require().NoError(s.store.Put(s.ctx, newTestSession(pkgoauth.ProviderLinkedIn, "l")))
	s.Require().NoError(s.mr.Set("getgetleads:state:abc", "pending"))
	s.Require().NoError(s.mr.Set("other:session:google", "foreign"))

	s.Require().NoError(s.store.Clear(s.ctx))

	s.False(s.mr.Exists("getgetleads:session:google"))
	s.False(s.mr.Exists("getgetleads:session:linkedin"))
	s.True(s.mr.Exists("getgetleads:state:abc"))
	s.True(s.mr.Exists("other:session:google"))
}

func (s *RedisStoreTestSuite) TestCustomPrefix() {
	store := NewRedisStore(s.client, "tenant-7:")
	s.Require().NoError(store.Put(s.ctx, newTestSession(pkgoauth.ProviderGoogle, "g")))
	s.True(s.mr.Exists("tenant-7:session:google"))

	_, err := s.store.Get(s.ctx, pkgoauth.ProviderGoogle)
	s.ErrorIs(err, ErrNotFound, "default prefix must not see tenant sessions")
}

func (s *RedisStoreTestSuite) TestCorruptValue() {
	s.Require().NoError(s.mr.Set("getgetleads:session:google", "{not json"))
	_, err := s.store.Get(s.ctx, pkgoauth.ProviderGoogle)
	s.Error(err)
	s.NotErrorIs(err, ErrNotFound)
}

func TestRedisStoreTestSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreTestSuite))
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisStore(client, "")
	})
}
