//go:build integration

package processedset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"concilia/internal/processedset"
	id "concilia/pkg/domain"
	"concilia/pkg/testutil/containers"
)

type RedisSetSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	set   *processedset.Redis
}

func TestRedisSetSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisSetSuite))
}

func (s *RedisSetSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.set = processedset.NewRedis(s.redis.Client)
}

func (s *RedisSetSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisSetSuite) TestAddAndContains() {
	ctx := context.Background()

	ok, err := s.set.Contains(ctx, id.CheckID(1))
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.set.Add(ctx, id.CheckID(1)))
	ok, err = s.set.Contains(ctx, id.CheckID(1))
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisSetSuite) TestAddIsIdempotent() {
	ctx := context.Background()

	s.Require().NoError(s.set.Add(ctx, id.CheckID(7)))
	s.Require().NoError(s.set.Add(ctx, id.CheckID(7)))

	ids, err := s.set.Load(ctx)
	s.Require().NoError(err)
	s.Len(ids, 1)
}

func (s *RedisSetSuite) TestLoadReturnsAllMembers() {
	ctx := context.Background()

	for _, checkID := range []id.CheckID{3, 5, 8} {
		s.Require().NoError(s.set.Add(ctx, checkID))
	}

	ids, err := s.set.Load(ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]id.CheckID{3, 5, 8}, ids)
}
