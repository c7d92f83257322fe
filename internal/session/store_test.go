package session

import (
	"testing"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/models"
)

func TestStore_Get_MintsAndReuses(t *testing.T) {
	st := NewStore(time.Hour)

	s := st.Get("")
	if s.ID() == "" {
		t.Fatal("minted session has empty ID")
	}

	again := st.Get(s.ID())
	if again != s {
		t.Error("Get() with known ID minted a new session")
	}

	other := st.Get("no-such-session")
	if other == s {
		t.Error("Get() with unknown ID returned an existing session")
	}
	if other.ID() == "no-such-session" {
		t.Error("unknown ID was adopted instead of minting a fresh one")
	}
}

func TestStore_Get_EvictsIdle(t *testing.T) {
	st := NewStore(30 * time.Millisecond)

	s := st.Get("")
	time.Sleep(60 * time.Millisecond)

	// Any access sweeps expired sessions first.
	replacement := st.Get(s.ID())
	if replacement == s {
		t.Error("idle session survived past its TTL")
	}
	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after eviction", st.Len())
	}
}

func TestStore_Get_AccessResetsIdleClock(t *testing.T) {
	st := NewStore(50 * time.Millisecond)

	s := st.Get("")
	for i := 0; i < 3; i++ {
		time.Sleep(25 * time.Millisecond)
		if got := st.Get(s.ID()); got != s {
			t.Fatalf("session evicted despite activity on access %d", i)
		}
	}
}

func TestSession_SetPredictions_SumsDeterminedOnly(t *testing.T) {
	st := NewStore(time.Hour)
	s := st.Get("")

	s.SetPredictions([]models.CropPrediction{
		{Crop: "rice", TotalIncome: 50000},
		{Crop: "unobtainium", Err: "could not determine yield or price"},
		{Crop: "wheat", TotalIncome: 30000},
	})

	if got := s.TotalIncome(); got != 80000 {
		t.Errorf("TotalIncome() = %v, want 80000 (undetermined rows excluded)", got)
	}
	if got := len(s.Predictions()); got != 3 {
		t.Errorf("len(Predictions()) = %d, want all 3 rows kept", got)
	}
}

func TestSession_Analysis_Lifecycle(t *testing.T) {
	st := NewStore(time.Hour)
	s := st.Get("")

	if _, ok := s.Analysis(); ok {
		t.Error("Analysis() = ok before any analysis stored")
	}

	loc := models.Location{Latitude: 18.52, Longitude: 73.85, Address: "Pune, Maharashtra, India"}
	s.SetAnalysis(loc, models.AnalysisResult{Region: "Pune", Location: loc})

	result, ok := s.Analysis()
	if !ok {
		t.Fatal("Analysis() = !ok after SetAnalysis")
	}
	if result.Region != "Pune" {
		t.Errorf("Region = %q, want Pune", result.Region)
	}
}

func TestSession_ExpensesPersistAcrossAccesses(t *testing.T) {
	st := NewStore(time.Hour)
	s := st.Get("")

	s.Expenses().Add([]models.ExpenseRecord{{Category: "Seeds", Amount: 100}})

	if got := len(st.Get(s.ID()).Expenses().Records()); got != 1 {
		t.Errorf("expense rows after re-access = %d, want 1", got)
	}
}
