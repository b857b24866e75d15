// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package impute

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/derat/contacts/population"
	"github.com/derat/contacts/sampler"
	"github.com/derat/contacts/survey"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failSource fails the test's imputation if any random draw is requested.
type failSource struct{}

func (failSource) Indices(n, size int, replace bool, weights []float64) ([]int, error) {
	return nil, errors.New("unexpected random draw")
}

// flatPop returns a distribution for ages [0, maxAge] with equal totals.
func flatPop(maxAge int) population.Distribution {
	var d population.Distribution
	for a := 0; a <= maxAge; a++ {
		d = append(d, population.Record{Age: a, Total: 100})
	}
	return d
}

// spikePop returns a distribution for ages [0, maxAge] where only spike has people.
func spikePop(maxAge, spike int) population.Distribution {
	d := make(population.Distribution, maxAge+1)
	for a := range d {
		d[a].Age = a
	}
	d[spike].Total = 1000
	return d
}

// contact returns a contact for partID with the supplied raw ages.
func contact(partID string, exact, min, max int) survey.Contact {
	c := survey.NewContact(partID, survey.Monday)
	c.AgeExact, c.AgeEstMin, c.AgeEstMax = exact, min, max
	return c
}

const na = survey.NoAge

func rawTable(cs ...survey.Contact) survey.ContactTable {
	return survey.ContactTable{Columns: survey.ColAgeRange, Contacts: cs}
}

func newEngine(t *testing.T, pop population.Distribution, cp ContactAgeProcess, up UnknownAgeProcess) *Engine {
	e, err := New(pop, Options{ContactAgeProcess: cp, UnknownAgeProcess: up})
	require.NoError(t, err)
	return e
}

func estimates(cs []survey.Contact) []int {
	ages := make([]int, len(cs))
	for i, c := range cs {
		ages[i] = c.AgeEst
	}
	return ages
}

func TestContacts_ExactAndPointOverrideProcess(t *testing.T) {
	tbl := rawTable(
		contact("a", 34, 0, 99),  // exact wins over the range
		contact("a", 7, na, na),  // exact only
		contact("b", na, 50, 50), // zero-width range
	)
	for _, cp := range []ContactAgeProcess{Mean, SampleUniform, SamplePopDist} {
		e := newEngine(t, flatPop(99), cp, UnknownRemove)
		got, err := e.Contacts(tbl, failSource{})
		require.NoError(t, err, "process %v", cp)
		if diff := cmp.Diff([]int{34, 7, 50}, estimates(got)); diff != "" {
			t.Errorf("Process %v produced wrong estimates:\n%s", cp, diff)
		}
	}
}

func TestContacts_Mean(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	got, err := e.Contacts(rawTable(
		contact("a", na, 10, 20),
		contact("a", na, 10, 15), // 12.5
		contact("a", na, 11, 16), // 13.5
		contact("a", na, 20, 10), // reversed bounds
	), failSource{})
	require.NoError(t, err)
	assert.Equal(t, []int{15, 12, 14, 15}, estimates(got))
	assert.Equal(t, 10, got[3].AgeLow)
	assert.Equal(t, 20, got[3].AgeHigh)
}

func TestContacts_SampleUniform(t *testing.T) {
	e := newEngine(t, spikePop(99, 50), SampleUniform, UnknownRemove)
	var cs []survey.Contact
	for i := 0; i < 200; i++ {
		cs = append(cs, contact("a", na, 20, 24))
	}
	got, err := e.Contacts(rawTable(cs...), sampler.New(1))
	require.NoError(t, err)
	seen := make(map[int]bool)
	for _, a := range estimates(got) {
		if a < 20 || a > 24 {
			t.Fatalf("Drew age %d outside [20, 24]", a)
		}
		seen[a] = true
	}
	// The population is ignored, so every age should show up.
	assert.Len(t, seen, 5)
}

func TestContacts_SamplePopDist(t *testing.T) {
	e := newEngine(t, spikePop(80, 33), SamplePopDist, UnknownRemove)
	got, err := e.Contacts(rawTable(
		contact("a", na, 30, 39),
		contact("b", na, 30, 39),
		contact("c", na, 30, 39),
	), sampler.New(2))
	require.NoError(t, err)
	assert.Equal(t, []int{33, 33, 33}, estimates(got))
}

func TestContacts_SamplePopDistClampsPastMaxAge(t *testing.T) {
	// Population data stops at 70, so 71-90 reuse age 70's total.
	pop := spikePop(70, 70)
	e := newEngine(t, pop, SamplePopDist, UnknownRemove)
	var cs []survey.Contact
	for i := 0; i < 300; i++ {
		cs = append(cs, contact("a", na, 65, 90))
	}
	got, err := e.Contacts(rawTable(cs...), sampler.New(3))
	require.NoError(t, err)
	above := 0
	for _, a := range estimates(got) {
		require.True(t, a >= 70 && a <= 90, "age %d has zero weight", a)
		if a > 70 {
			above++
		}
	}
	assert.Greater(t, above, 0, "no ages above the population's max age were drawn")
}

func TestContacts_UnknownRemove(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	got, err := e.Contacts(rawTable(
		contact("a", 5, na, na),
		contact("a", na, na, na),
		contact("b", na, 10, na), // half a range is no range
		contact("b", na, 40, 42),
	), failSource{})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 41}, estimates(got))
}

func TestContacts_UnknownSamplePopDist(t *testing.T) {
	e := newEngine(t, spikePop(99, 61), Mean, UnknownSamplePopDist)
	got, err := e.Contacts(rawTable(
		contact("a", 5, na, na),
		contact("a", na, na, na),
		contact("b", na, na, na),
	), sampler.New(4))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 61, 61}, estimates(got))
}

func TestContacts_UnknownSamplePartDist(t *testing.T) {
	e := newEngine(t, spikePop(99, 61), Mean, UnknownSamplePartDist)
	got, err := e.Contacts(rawTable(
		contact("a", 20, na, na),
		contact("a", na, na, na), // takes a's only known range
		contact("a", na, na, na),
		contact("b", na, na, na), // b has nothing known, so population
		contact("c", na, 30, 39), // population in [30, 39] is empty
		contact("c", na, na, na),
	), sampler.New(5))
	require.NoError(t, err)

	ages := estimates(got)
	assert.Equal(t, []int{20, 20, 20, 61}, ages[:4])
	for _, i := range []int{4, 5} {
		assert.True(t, ages[i] >= 30 && ages[i] <= 39, "contact %d got age %d", i, ages[i])
	}
	assert.Equal(t, 30, got[5].AgeLow)
	assert.Equal(t, 39, got[5].AgeHigh)
}

func TestContacts_AgeGroups(t *testing.T) {
	groups := survey.AgeGroups{{"child", 0, 17}, {"adult", 18, 64}, {"senior", 65, 99}}
	e, err := New(flatPop(99), Options{
		ContactAgeProcess: Mean,
		UnknownAgeProcess: UnknownRemove,
		AgeGroups:         groups,
	})
	require.NoError(t, err)

	mk := func(label string) survey.Contact {
		c := survey.NewContact("a", survey.Friday)
		c.AgeGroup = label
		return c
	}
	got, err := e.Contacts(survey.ContactTable{
		Columns:  survey.ColAgeGroup,
		Contacts: []survey.Contact{mk("child"), mk("senior"), mk("bogus"), mk("adult")},
	}, failSource{})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 82, 41}, estimates(got)) // 8.5 rounds to even

	_, err = e.Contacts(rawTable(contact("a", 1, na, na)), failSource{})
	assert.ErrorIs(t, err, survey.ErrSchema)
}

func TestContacts_MissingColumns(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	_, err := e.Contacts(survey.ContactTable{
		Columns:  survey.ColAgeEstMin | survey.ColAgeEstMax,
		Contacts: []survey.Contact{contact("a", na, 1, 2)},
	}, failSource{})
	assert.ErrorIs(t, err, survey.ErrSchema)
}

func TestContacts_DoesNotModifyInput(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	tbl := rawTable(contact("a", na, 10, 20), contact("b", na, na, na))
	orig := append([]survey.Contact(nil), tbl.Contacts...)
	_, err := e.Contacts(tbl, failSource{})
	require.NoError(t, err)
	assert.Equal(t, orig, tbl.Contacts)
}

func TestContacts_WrittenContactsCanBeReimputed(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	first, err := e.Contacts(rawTable(
		contact("a", 10, na, na),
		contact("a", na, 20, 29),
		contact("b", na, na, na),
	), failSource{})
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, survey.WriteContacts(p, first))
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	tbl, err := survey.ReadContacts(f)
	require.NoError(t, err)

	second, err := e.Contacts(*tbl, failSource{})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 24}, estimates(second))
	assert.Equal(t, estimates(first), estimates(second))
}

func TestNew_BadOptions(t *testing.T) {
	_, err := New(flatPop(9), Options{ContactAgeProcess: "median", UnknownAgeProcess: UnknownRemove})
	assert.ErrorIs(t, err, survey.ErrConfiguration)
	_, err = New(flatPop(9), Options{ContactAgeProcess: Mean, UnknownAgeProcess: "guess"})
	assert.ErrorIs(t, err, survey.ErrConfiguration)
	_, err = New(flatPop(9), DefaultOptions())
	assert.NoError(t, err)
}

func TestParticipants(t *testing.T) {
	e := newEngine(t, spikePop(99, 45), Mean, UnknownRemove)
	mk := func(id string, age, min, max int) survey.Participant {
		p := survey.NewParticipant(id, survey.Tuesday)
		p.Age, p.AgeEstMin, p.AgeEstMax = age, min, max
		return p
	}
	parts := []survey.Participant{
		mk("a", 30, na, na),
		mk("b", na, 0, 1), // under 1
		mk("c", na, 40, 49),
		mk("d", na, na, na), // nothing to go on
		mk("e", na, 40, 49),
	}
	got, err := e.Participants(parts, sampler.New(6))
	require.NoError(t, err)
	ages := make([]int, len(got))
	for i, p := range got {
		ages[i] = p.Age
	}
	assert.Equal(t, []int{30, 0, 45, na, 45}, ages)
	assert.Equal(t, na, parts[1].Age, "input was modified")
}

func TestParticipants_NoOp(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	parts := []survey.Participant{survey.NewParticipant("a", survey.Monday)}
	parts[0].Age = 20
	got, err := e.Participants(parts, failSource{})
	require.NoError(t, err)
	assert.Same(t, &parts[0], &got[0])
}

func bootstrapTable() survey.ContactTable {
	return rawTable(
		contact("a", 1, na, na),
		contact("a", 2, na, na),
		contact("b", 3, na, na),
		contact("c", 4, na, na),
		contact("c", 5, na, na),
		contact("c", na, 20, 29),
	)
}

func TestBootstrap_ZeroSamples(t *testing.T) {
	e := newEngine(t, flatPop(99), SampleUniform, UnknownRemove)
	tbl := bootstrapTable()
	got, err := e.Bootstrap(context.Background(), tbl, BootstrapOptions{Samples: 0, Seed: 9})
	require.NoError(t, err)
	want, err := e.Contacts(tbl, sampler.New(9))
	require.NoError(t, err)
	if diff := cmp.Diff([][]survey.Contact{want}, got); diff != "" {
		t.Error("Bootstrap with zero samples differs from single imputation:\n" + diff)
	}
}

func TestBootstrap_NoSample(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	sets := [][]string{{"a", "a", "c"}, {"b"}, {}}
	got, err := e.Bootstrap(context.Background(), bootstrapTable(), BootstrapOptions{
		Samples: 3, Type: NoSample, Seed: 1, ParticipantSets: sets,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 4, 5, 24}, estimates(got[0]))
	assert.Equal(t, []int{3}, estimates(got[1]))
	assert.Empty(t, got[2])
}

func TestBootstrap_SampleParticipantsContacts(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	got, err := e.Bootstrap(context.Background(), bootstrapTable(), BootstrapOptions{
		Samples: 20, Type: SampleParticipantsContacts, Seed: 2,
	})
	require.NoError(t, err)
	want := map[string]int{"a": 2, "b": 1, "c": 3}
	for i, cs := range got {
		counts := make(map[string]int)
		for _, c := range cs {
			counts[c.PartID]++
		}
		for id, n := range counts {
			assert.Zero(t, n%want[id], "replicate %d participant %q has %d contact(s)", i, id, n)
		}
	}
}

func TestBootstrap_SampleParticipantsContactsRepeatsDraws(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	got, err := e.Bootstrap(context.Background(), bootstrapTable(), BootstrapOptions{
		Samples: 1, Type: SampleParticipantsContacts, Seed: 4,
		ParticipantSets: [][]string{{"a", "c", "a"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	counts := make(map[string]int)
	for _, c := range got[0] {
		counts[c.PartID]++
	}
	assert.Equal(t, map[string]int{"a": 4, "c": 3}, counts)
}

func TestBootstrap_All(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	tbl := bootstrapTable()
	got, err := e.Bootstrap(context.Background(), tbl, BootstrapOptions{
		Samples: 10, Type: BootstrapAll, Seed: 3,
	})
	require.NoError(t, err)
	require.Len(t, got, 10)
	for _, cs := range got {
		assert.Len(t, cs, len(tbl.Contacts))
	}
}

func TestBootstrap_ReproducibleAcrossWorkers(t *testing.T) {
	e := newEngine(t, flatPop(99), SamplePopDist, UnknownSamplePartDist)
	tbl := bootstrapTable()
	tbl.Contacts = append(tbl.Contacts, contact("b", na, na, na))
	run := func(workers int) [][]survey.Contact {
		got, err := e.Bootstrap(context.Background(), tbl, BootstrapOptions{
			Samples: 8, Type: SampleParticipantsContacts, Seed: 42, Workers: workers,
		})
		require.NoError(t, err)
		return got
	}
	if diff := cmp.Diff(run(1), run(4)); diff != "" {
		t.Error("Bootstrap results depend on worker count:\n" + diff)
	}
}

func TestBootstrap_BadOptions(t *testing.T) {
	e := newEngine(t, flatPop(99), Mean, UnknownRemove)
	ctx := context.Background()
	_, err := e.Bootstrap(ctx, bootstrapTable(), BootstrapOptions{Samples: -1})
	assert.ErrorIs(t, err, survey.ErrConfiguration)
	_, err = e.Bootstrap(ctx, bootstrapTable(), BootstrapOptions{Samples: 2, Type: "jackknife"})
	assert.ErrorIs(t, err, survey.ErrConfiguration)
	_, err = e.Bootstrap(ctx, bootstrapTable(), BootstrapOptions{
		Samples: 2, Type: NoSample, ParticipantSets: [][]string{{"a"}},
	})
	assert.ErrorIs(t, err, survey.ErrConfiguration)

	_, err = e.Bootstrap(ctx, survey.ContactTable{}, BootstrapOptions{Samples: 2, Type: BootstrapAll})
	assert.ErrorIs(t, err, survey.ErrSchema)
}
