package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	got   Filter
	items []Entry
	total int
}

func (s *stubRepo) List(_ context.Context, filter Filter) ([]Entry, int, error) {
	s.got = filter
	return s.items, s.total, nil
}

func TestListClampsPaging(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	page, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.got.Page)
	require.Equal(t, 20, repo.got.PageSize)
	require.NotNil(t, page.Items)
	require.False(t, page.HasNext)

	_, err = svc.List(context.Background(), Filter{Page: -4, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 1, repo.got.Page)
	require.Equal(t, 100, repo.got.PageSize)
}

func TestListComputesNeighbourPages(t *testing.T) {
	repo := &stubRepo{items: make([]Entry, 10), total: 31}
	svc := NewService(repo)

	page, err := svc.List(context.Background(), Filter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.True(t, page.HasNext)
	require.Equal(t, 1, page.PrevPage)
	require.Equal(t, 3, page.NextPage)

	repo.items = make([]Entry, 1)
	page, err = svc.List(context.Background(), Filter{Page: 4, PageSize: 10})
	require.NoError(t, err)
	require.False(t, page.HasNext)
	require.Zero(t, page.NextPage)
	require.Equal(t, 31, page.Total)
}

func TestListWithoutRepository(t *testing.T) {
	_, err := NewService(nil).List(context.Background(), Filter{})
	require.Error(t, err)
}
