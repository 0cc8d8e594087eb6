package domain

import (
	"strings"
	"testing"
)

func TestExecuteLocationActionCityHall(t *testing.T) {
	p := NewPlayer(0, "user-1", "Alice")
	p.Gold = 3

	msg, changed := ExecuteLocationAction(p, LocationCityHall)
	if !changed {
		t.Fatal("city hall should resolve with gold on hand")
	}
	if p.Gold != 2 {
		t.Fatalf("gold = %d, want 2 after lobbying", p.Gold)
	}
	if !strings.Contains(msg, "lobbied") {
		t.Fatalf("unexpected message: %q", msg)
	}

	p.Gold = 0
	if _, changed := ExecuteLocationAction(p, LocationCityHall); changed {
		t.Fatal("city hall should be a no-op without gold")
	}
}

func TestExecuteLocationActionMarketplace(t *testing.T) {
	p := NewPlayer(0, "user-1", "Alice")
	p.Gold = 0
	p.Goods = map[string]int{"cloth": 1, "spices": 1}

	// Catalogue order sells the cheapest held goods type first.
	msg, changed := ExecuteLocationAction(p, LocationMarketplace)
	if !changed {
		t.Fatal("marketplace should trade held goods")
	}
	if p.Gold != 2 || p.Goods["cloth"] != 0 || p.Goods["spices"] != 1 {
		t.Fatalf("after trade gold=%d goods=%v", p.Gold, p.Goods)
	}
	if !strings.Contains(msg, "cloth") {
		t.Fatalf("unexpected message: %q", msg)
	}

	p.Goods = map[string]int{}
	if _, changed := ExecuteLocationAction(p, LocationMarketplace); changed {
		t.Fatal("marketplace should be a no-op with no goods")
	}
}

func TestExecuteLocationActionProductionHall(t *testing.T) {
	p := NewPlayer(0, "user-1", "Alice")
	p.Buildings = []string{"manufactory", "library", "manufactory"}

	msg, changed := ExecuteLocationAction(p, LocationProductionHall)
	if !changed {
		t.Fatal("production hall should produce with manufactories")
	}
	if p.Goods["grain"] != 2 {
		t.Fatalf("grain = %d, want 2 for two manufactories", p.Goods["grain"])
	}
	if !strings.Contains(msg, "produced 2 goods") {
		t.Fatalf("unexpected message: %q", msg)
	}

	p.Buildings = []string{"library"}
	if _, changed := ExecuteLocationAction(p, LocationProductionHall); changed {
		t.Fatal("production hall should be a no-op without manufactories")
	}
}

func TestExecuteLocationActionNoEffectLocations(t *testing.T) {
	for _, locationID := range []string{
		LocationThievesGuild,
		LocationRecruitmentOffice,
		LocationPrintingPress,
		LocationConstructionYard,
		"no_such_place",
	} {
		p := NewPlayer(0, "user-1", "Alice")
		if _, changed := ExecuteLocationAction(p, locationID); changed {
			t.Fatalf("%s should carry no resolution effect", locationID)
		}
	}
}
