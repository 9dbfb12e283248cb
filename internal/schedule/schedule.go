// Package schedule computes the minimum allowable balance (MAB) a staking
// contract enforces on withdrawals, and the lockup bonus schedule used to
// size a fill.
package schedule

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/bits"
	"strconv"
)

// MaxPeriod is the largest lockup period selector configure accepts.
const MaxPeriod = 5

// SecondsInMonth is the average month used for planning (30.44 days).
const SecondsInMonth = 2_630_016

var aprByPeriod = [MaxPeriod + 1]uint64{0, 10, 12, 15, 18, 20}

// Params are the deploy-time template values of a contract.
type Params struct {
	PeriodSeconds uint64
	VestingDelay  uint64
	LockupDelay   uint64
}

// Position is the configured state of one contract instance.
type Position struct {
	Period  uint64
	Funding uint64
	Total   uint64
}

// MAB returns the balance that must stay in the contract at time now.
// The full total is locked for LockupDelay*Period periods after funding,
// then released linearly over VestingDelay periods.
func MAB(now uint64, p Params, pos Position) uint64 {
	lockupSeconds := p.LockupDelay * pos.Period * p.PeriodSeconds
	if now < pos.Funding+lockupSeconds {
		return pos.Total
	}
	if now >= pos.Funding+lockupSeconds+p.VestingDelay*p.PeriodSeconds {
		return 0
	}
	elapsed := (now - (pos.Funding + lockupSeconds)) / p.PeriodSeconds
	hi, lo := bits.Mul64(pos.Total, p.VestingDelay-elapsed)
	q, _ := bits.Div64(hi, lo, p.VestingDelay)
	return q
}

// APR is the yearly bonus rate in percent for a lockup period selector.
func APR(period uint64) (uint64, bool) {
	if period > MaxPeriod {
		return 0, false
	}
	return aprByPeriod[period], true
}

// Accumulated compounds principal at apr percent for years, truncated.
func Accumulated(principal, apr, years uint64) uint64 {
	return uint64(float64(principal) * math.Pow(1+float64(apr)/100, float64(years)))
}

// PointsToTokens converts airdrop points at 3.75 tokens per 100 points.
func PointsToTokens(points uint64) uint64 {
	return points * 375 / 10_000
}

// TotalForPeriod is the fill amount for a principal locked for period.
func TotalForPeriod(principal, period uint64) uint64 {
	apr, ok := APR(period)
	if !ok {
		return 0
	}
	return Accumulated(principal, apr, period)
}

// TableSpec describes a MAB grid over time for every lockup period.
type TableSpec struct {
	Params    Params
	Principal uint64
	Funding   uint64
	Until     uint64
	Step      uint64
}

// Row is one sample of the grid: MAB per period selector 0..MaxPeriod.
type Row struct {
	At  uint64
	MAB [MaxPeriod + 1]uint64
}

// Table samples MAB from Funding to Until (exclusive) every Step seconds.
func Table(spec TableSpec) ([]Row, error) {
	if spec.Step == 0 {
		return nil, fmt.Errorf("step must be greater than 0")
	}
	var rows []Row
	for at := spec.Funding; at < spec.Until; at += spec.Step {
		row := Row{At: at}
		for period := uint64(0); period <= MaxPeriod; period++ {
			row.MAB[period] = MAB(at, spec.Params, Position{
				Period:  period,
				Funding: spec.Funding,
				Total:   TotalForPeriod(spec.Principal, period),
			})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV renders rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	header := []string{"seconds"}
	for period := 0; period <= MaxPeriod; period++ {
		header = append(header, "period_"+strconv.Itoa(period))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{strconv.FormatUint(row.At, 10)}
		for _, v := range row.MAB {
			record = append(record, strconv.FormatUint(v, 10))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
