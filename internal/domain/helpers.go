package domain

import "fmt"

// ArchitectDiscount is the flat construction discount for the architect role.
const ArchitectDiscount = 3

// PlayerWealth returns gold plus the market value of all held goods.
func PlayerWealth(p *Player) int {
	wealth := p.Gold
	for goodsID, count := range p.Goods {
		if goods, ok := GoodsTypeByID(goodsID); ok {
			wealth += goods.Value * count
		}
	}
	return wealth
}

// AvailableServants returns placeable servants including the round bonus.
func AvailableServants(p *Player) int {
	return p.ServantsAvailable + p.ExtraServants
}

// CanAffordBuilding checks affordability after any architect discount.
func CanAffordBuilding(p *Player, buildingCost int, isArchitect bool) bool {
	cost := buildingCost
	if isArchitect {
		cost -= ArchitectDiscount
	}
	if cost < 0 {
		cost = 0
	}
	return p.Gold >= cost
}

// ApplyStartingRewards returns a copy of the player with the reward bundle
// applied. The input player is not mutated.
func ApplyStartingRewards(p Player, rewards Rewards) Player {
	out := p
	out.Gold += rewards.Gold
	out.PoliticalInfluence += rewards.PoliticalInfluence

	out.Buildings = append(append([]string{}, p.Buildings...), rewards.Buildings...)

	out.HenchmanCards = append([]string{}, p.HenchmanCards...)
	for i := 0; i < rewards.HenchmanCards; i++ {
		out.HenchmanCards = append(out.HenchmanCards, fmt.Sprintf("Henchman Card %d", i+1))
	}
	return out
}

// FormatPlayerName renders "Name (Role)" when a role is held.
func FormatPlayerName(p *Player) string {
	if p.Role == "" {
		return p.Name
	}
	role, ok := RoleByID(p.Role)
	if !ok {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, role.Name)
}
