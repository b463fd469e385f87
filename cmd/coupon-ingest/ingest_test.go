package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-engine/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]coupon.Coupon
	err     error
}

func (s *fakeSink) UpsertMany(_ context.Context, coupons []coupon.Coupon, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]coupon.Coupon(nil), coupons...))
	return nil
}

func (s *fakeSink) codes() []string {
	var out []string
	for _, b := range s.batches {
		for _, c := range b {
			out = append(out, c.Code)
		}
	}
	return out
}

func TestImporter(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "spring-001", "SPRING-002", "bad code", "x"),
		writeGz(t, dir, "b.gz", "SPRING-002", "SPRING-003", "LEAKED-01"),
	}
	revoked := writeGz(t, dir, "revoked.gz", "leaked-01")

	tmpl, err := campaignTemplate("percentage", "15", "", "20", 1, time.Hour, "Spring")
	require.NoError(t, err)

	sink := &fakeSink{}
	imp := importer{files: files, revokedFile: revoked, template: tmpl, batchSize: 2, sink: sink}
	stats, err := imp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, importStats{Imported: 3, Duplicates: 1, Revoked: 1, Malformed: 2}, stats)
	assert.ElementsMatch(t, []string{"SPRING-001", "SPRING-002", "SPRING-003"}, sink.codes())
	for _, b := range sink.batches {
		assert.LessOrEqual(t, len(b), 2)
	}

	c := sink.batches[0][0]
	assert.Equal(t, coupon.DiscountPercentage, c.DiscountType)
	assert.True(t, c.DiscountValue.Equal(decimal.NewFromInt(15)))
	assert.True(t, c.MaxDiscountAmount.Valid)
	assert.False(t, c.MinPurchaseAmount.Valid)
	require.NotNil(t, c.UsageLimit)
	assert.Equal(t, 1, *c.UsageLimit)
	require.NotNil(t, c.ValidUntil)
}

func TestImporter_SinkError(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.gz", "CODE-1", "CODE-2", "CODE-3")}
	tmpl, err := campaignTemplate("FIXED", "5", "", "", 0, 0, "")
	require.NoError(t, err)

	errDown := errors.New("database down")
	imp := importer{files: files, template: tmpl, batchSize: 1, sink: &fakeSink{err: errDown}}
	_, err = imp.Run(context.Background())
	require.ErrorIs(t, err, errDown)
}

func TestImporter_MissingFile(t *testing.T) {
	imp := importer{files: []string{filepath.Join(t.TempDir(), "nope.gz")}, sink: &fakeSink{}}
	_, err := imp.Run(context.Background())
	require.Error(t, err)
}

func TestCampaignTemplate(t *testing.T) {
	_, err := campaignTemplate("BOGO", "10", "", "", 0, 0, "")
	require.ErrorIs(t, err, coupon.ErrUnknownDiscountType)

	_, err = campaignTemplate("PERCENTAGE", "150", "", "", 0, 0, "")
	require.Error(t, err)

	_, err = campaignTemplate("FIXED", "0", "", "", 0, 0, "")
	require.Error(t, err)

	c, err := campaignTemplate("FIXED", "9.99", "50", "", 0, 0, "")
	require.NoError(t, err)
	assert.Nil(t, c.UsageLimit)
	assert.Nil(t, c.ValidUntil)
	assert.True(t, c.MinPurchaseAmount.Decimal.Equal(decimal.NewFromInt(50)))
}

func TestValidCode(t *testing.T) {
	assert.True(t, validCode("SAVE10"))
	assert.True(t, validCode("SPRING_2026-A"))
	assert.False(t, validCode("AB"))
	assert.False(t, validCode("HAS SPACE"))
	assert.False(t, validCode(strings.Repeat("A", 33)))
}
