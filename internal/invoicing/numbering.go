package invoicing

import "strconv"

const numberPrefix = "INV-"

// baseNumber renders the invoice identifier used on documents.
func baseNumber(number, id int64) string {
	if number > 0 {
		return numberPrefix + strconv.FormatInt(number, 10)
	}
	return numberPrefix + strconv.FormatInt(id, 10)
}

// CorrectionSuffix renders the suffix of the seq-th correction of a parent.
// The first correction carries a bare "/FK"; the second is "/FK1", the third "/FK2".
func CorrectionSuffix(seq int) string {
	if seq <= 1 {
		return "/FK"
	}
	return "/FK" + strconv.Itoa(seq-1)
}

// FullNumber derives the display number of inv. Corrections are numbered after their parent.
func FullNumber(inv Invoice) string {
	if !inv.IsCorrection {
		return baseNumber(inv.Number, inv.ID)
	}
	return baseNumber(inv.ParentNumber, inv.ParentID) + CorrectionSuffix(inv.CorrectionSeq)
}

// NextCorrectionSeq returns the ordinal of a new correction given the existing count for its parent.
func NextCorrectionSeq(existing int) int {
	return existing + 1
}

// NumberingReport describes the health of the invoice number sequence.
type NumberingReport struct {
	Count      int     `json:"count"`
	Last       int64   `json:"last"`
	Missing    []int64 `json:"missing"`
	Duplicates []int64 `json:"duplicates"`
}

// OK reports whether the sequence is 1..Last without holes or repeats.
func (r NumberingReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Duplicates) == 0
}

// CheckNumbering inspects ascending invoice numbers for holes and repeats.
func CheckNumbering(sorted []int64) NumberingReport {
	report := NumberingReport{Count: len(sorted), Missing: []int64{}, Duplicates: []int64{}}
	var prev int64
	for i, n := range sorted {
		if i > 0 && n == prev {
			if len(report.Duplicates) == 0 || report.Duplicates[len(report.Duplicates)-1] != n {
				report.Duplicates = append(report.Duplicates, n)
			}
			continue
		}
		for missing := prev + 1; missing < n; missing++ {
			report.Missing = append(report.Missing, missing)
		}
		prev = n
	}
	report.Last = prev
	return report
}
