package domain

import "fmt"

// ExecuteLocationAction runs the implemented effect of a location for the
// given player and returns a log line describing what happened. The boolean
// reports whether any state changed. Only City Hall, the Marketplace and the
// Production Hall carry mechanical effects; the remaining locations are
// registry entries without resolution logic.
func ExecuteLocationAction(p *Player, locationID string) (string, bool) {
	switch locationID {
	case LocationCityHall:
		if p.Gold < 1 {
			return "", false
		}
		p.Gold--
		return fmt.Sprintf("%s lobbied (spent 1 gold)", p.Name), true

	case LocationMarketplace:
		// Trade the first held goods type in catalogue order for 2 gold.
		for _, goods := range GoodsTypes() {
			if p.Goods[goods.ID] > 0 {
				p.Goods[goods.ID]--
				p.Gold += 2
				return fmt.Sprintf("%s traded %s for 2 gold", p.Name, goods.ID), true
			}
		}
		return "", false

	case LocationProductionHall:
		produced := 0
		for _, building := range p.Buildings {
			if building == "manufactory" {
				p.Goods["grain"]++
				produced++
			}
		}
		if produced == 0 {
			return "", false
		}
		return fmt.Sprintf("%s produced %d goods", p.Name, produced), true
	}
	return "", false
}
