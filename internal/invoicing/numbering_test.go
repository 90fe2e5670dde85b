package invoicing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorrectionSuffix(t *testing.T) {
	cases := map[int]string{0: "/FK", 1: "/FK", 2: "/FK1", 3: "/FK2", 11: "/FK10"}
	for seq, want := range cases {
		require.Equal(t, want, CorrectionSuffix(seq), "seq %d", seq)
	}
}

func TestFullNumber(t *testing.T) {
	tests := []struct {
		name string
		inv  Invoice
		want string
	}{
		{name: "numbered", inv: Invoice{ID: 40, Number: 12}, want: "INV-12"},
		{name: "unnumbered falls back to id", inv: Invoice{ID: 7}, want: "INV-7"},
		{name: "first correction of unnumbered parent", inv: Invoice{ID: 8, IsCorrection: true, ParentID: 7, CorrectionSeq: 1}, want: "INV-7/FK"},
		{name: "second correction of unnumbered parent", inv: Invoice{ID: 9, IsCorrection: true, ParentID: 7, CorrectionSeq: 2}, want: "INV-7/FK1"},
		{name: "correction of numbered parent", inv: Invoice{ID: 30, IsCorrection: true, ParentID: 3, ParentNumber: 21, CorrectionSeq: 3}, want: "INV-21/FK2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FullNumber(tc.inv))
		})
	}
}

func TestCheckNumbering(t *testing.T) {
	report := CheckNumbering([]int64{1, 2, 3})
	require.True(t, report.OK())
	require.Equal(t, int64(3), report.Last)

	report = CheckNumbering([]int64{2, 3, 3, 3, 6})
	require.False(t, report.OK())
	require.Equal(t, []int64{1, 4, 5}, report.Missing)
	require.Equal(t, []int64{3}, report.Duplicates)
	require.Equal(t, 5, report.Count)

	empty := CheckNumbering(nil)
	require.True(t, empty.OK())
	require.Zero(t, empty.Last)
}
