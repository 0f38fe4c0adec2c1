// Package recurrence expands recurrence rules into concrete occurrence
// instants. Iteration is restartable: an iterator is derived from the rule
// alone and consumes no shared state. All arithmetic is over naive timestamps;
// zone designators are stripped at rule creation time.
package recurrence

import (
	"sort"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
)

// Validate checks a rule at the creation boundary: exactly one stop condition
// and a positive interval.
func Validate(r *models.NotificationRecurrence) error {
	if !r.Frequency.Known() {
		return errors.NewInvalidRecurrence("unknown frequency")
	}
	if r.Interval < 1 {
		return errors.NewInvalidRecurrence("interval must be at least 1")
	}
	if r.Count == nil && r.Until == nil {
		return errors.NewInvalidRecurrence("either count or until must be specified")
	}
	if r.Count != nil && r.Until != nil {
		return errors.NewInvalidRecurrence("count and until are mutually exclusive")
	}
	if r.Count != nil && *r.Count < 1 {
		return errors.NewInvalidRecurrence("count must be at least 1")
	}
	return nil
}

// Normalize strips time zone designators from every timestamp in the rule.
func Normalize(r *models.NotificationRecurrence) {
	r.StartedAt = naive(r.StartedAt)
	if r.Until != nil {
		u := naive(*r.Until)
		r.Until = &u
	}
	for i, d := range r.AdditionalDates {
		r.AdditionalDates[i] = naive(d)
	}
	for i, d := range r.ExcludeDates {
		r.ExcludeDates[i] = naive(d)
	}
}

func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Iter is a restartable occurrence iterator. The zero value is not usable;
// construct with New.
type Iter struct {
	rule *models.NotificationRecurrence

	base      baseIter
	pending   []time.Time // additional dates not yet merged, sorted
	exclude   map[time.Time]struct{}
	emitted   int
	exhausted bool
}

// New builds an iterator over the rule's occurrences. The rule is assumed
// Validate-d and Normalize-d.
func New(rule *models.NotificationRecurrence) *Iter {
	pending := append([]time.Time(nil), rule.AdditionalDates...)
	sortTimes(pending)

	exclude := make(map[time.Time]struct{}, len(rule.ExcludeDates))
	for _, d := range rule.ExcludeDates {
		exclude[d] = struct{}{}
	}

	return &Iter{
		rule:    rule,
		base:    newBaseIter(rule),
		pending: pending,
		exclude: exclude,
	}
}

// Next returns the next occurrence. ok is false once the sequence is
// exhausted. Exclusions are subtracted after the union with additional dates,
// so an excluded instant is removed even when separately listed as
// additional; additional dates do not count against the rule's count budget.
func (it *Iter) Next() (time.Time, bool) {
	for {
		t, fromBase, ok := it.peekMerged()
		if !ok {
			return time.Time{}, false
		}
		it.advance(fromBase)
		if _, excluded := it.exclude[t]; excluded {
			continue
		}
		return t, true
	}
}

// peekMerged looks at the heads of the base sequence and the additional-dates
// list and picks the earlier one, collapsing duplicates.
func (it *Iter) peekMerged() (t time.Time, fromBase bool, ok bool) {
	baseNext, baseOK := it.peekBase()
	addOK := len(it.pending) > 0

	switch {
	case !baseOK && !addOK:
		return time.Time{}, false, false
	case !baseOK:
		return it.pending[0], false, true
	case !addOK:
		return baseNext, true, true
	case it.pending[0].Before(baseNext):
		return it.pending[0], false, true
	case it.pending[0].Equal(baseNext):
		// Same instant from both sources: drop the additional copy.
		it.pending = it.pending[1:]
		return baseNext, true, true
	default:
		return baseNext, true, true
	}
}

func (it *Iter) advance(fromBase bool) {
	if fromBase {
		it.base.next()
		it.emitted++
	} else {
		it.pending = it.pending[1:]
	}
}

// peekBase applies the rule's stop condition over the raw frequency sequence.
func (it *Iter) peekBase() (time.Time, bool) {
	if it.exhausted {
		return time.Time{}, false
	}
	if it.rule.Count != nil && it.emitted >= *it.rule.Count {
		it.exhausted = true
		return time.Time{}, false
	}
	t := it.base.peek()
	if it.rule.Until != nil && t.After(*it.rule.Until) {
		it.exhausted = true
		return time.Time{}, false
	}
	return t, true
}

// Expand collects up to limit occurrences. limit guards unbounded
// until-governed rules; pass a negative limit to collect everything a
// count-governed rule produces.
func Expand(rule *models.NotificationRecurrence, limit int) []time.Time {
	var out []time.Time
	it := New(rule)
	for {
		if limit >= 0 && len(out) >= limit {
			return out
		}
		t, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// Between returns occurrences in the half-open window (after, until].
func Between(rule *models.NotificationRecurrence, after, until time.Time) []time.Time {
	var out []time.Time
	it := New(rule)
	for {
		t, ok := it.Next()
		if !ok || t.After(until) {
			return out
		}
		if t.After(after) {
			out = append(out, t)
		}
	}
}

// baseIter produces the raw frequency+interval sequence from started_at,
// with the weekday filter applied to weekly rules.
type baseIter struct {
	rule *models.NotificationRecurrence

	current  time.Time
	weekDays map[time.Weekday]struct{}
}

func newBaseIter(rule *models.NotificationRecurrence) baseIter {
	b := baseIter{rule: rule, current: rule.StartedAt}

	// The weekday filter is honored only alongside weekly frequency; its
	// meaning for other frequencies is undefined upstream and ignored here.
	if rule.Frequency == models.FreqWeekly && len(rule.WeekDays) > 0 {
		b.weekDays = make(map[time.Weekday]struct{}, len(rule.WeekDays))
		for _, d := range rule.WeekDays {
			b.weekDays[d] = struct{}{}
		}
		b.current = b.seekWeekday(b.current)
	}
	return b
}

func (b *baseIter) peek() time.Time {
	return b.current
}

func (b *baseIter) next() {
	if b.weekDays != nil {
		b.current = b.seekWeekday(b.step(b.current, 1))
		return
	}
	b.current = b.stepInterval(b.current)
}

// seekWeekday advances day by day from t until a listed weekday; crossing a
// week boundary consumes the rule's interval in whole weeks.
func (b *baseIter) seekWeekday(t time.Time) time.Time {
	for {
		if _, ok := b.weekDays[t.Weekday()]; ok {
			return t
		}
		next := b.step(t, 1)
		// Entering a new week skips ahead interval-1 extra weeks.
		if startOfWeek(next) != startOfWeek(t) && b.rule.Interval > 1 {
			next = next.AddDate(0, 0, 7*(b.rule.Interval-1))
		}
		t = next
	}
}

// step moves t by n days.
func (b *baseIter) step(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

func (b *baseIter) stepInterval(t time.Time) time.Time {
	n := b.rule.Interval
	switch b.rule.Frequency {
	case models.FreqYearly:
		return t.AddDate(n, 0, 0)
	case models.FreqMonthly:
		return t.AddDate(0, n, 0)
	case models.FreqWeekly:
		return t.AddDate(0, 0, 7*n)
	case models.FreqDaily:
		return t.AddDate(0, 0, n)
	case models.FreqHourly:
		return t.Add(time.Duration(n) * time.Hour)
	case models.FreqMinutely:
		return t.Add(time.Duration(n) * time.Minute)
	default: // secondly
		return t.Add(time.Duration(n) * time.Second)
	}
}

// startOfWeek normalizes to the Monday of t's week, matching the weekday
// numbering the rules are stored with.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
