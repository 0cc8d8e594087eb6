package domain

// Role is a draftable round role.
type Role struct {
	ID          string
	Name        string
	Description string
}

// Location is a board action space players place servants on.
type Location struct {
	ID          string
	Name        string
	Description string
}

// Policy is a round decree the mayor can enact.
type Policy struct {
	ID          string
	Name        string
	Description string
}

// GoodsType is a tradable goods category with a fixed market value.
type GoodsType struct {
	ID          string
	Name        string
	Value       int
	Description string
}

// Building is a purchasable structure.
type Building struct {
	ID          string
	Name        string
	Cost        int
	Description string
}

// Rewards is the bundle granted by a starting choice.
type Rewards struct {
	Gold               int      `json:"gold"`
	PoliticalInfluence int      `json:"political_influence"`
	Buildings          []string `json:"buildings,omitempty"`
	HenchmanCards      int      `json:"henchman_cards,omitempty"`
}

// StartingChoice is one of the background templates picked during setup.
type StartingChoice struct {
	ID          string
	Name        string
	Description string
	Rewards     Rewards
}

// Role identifiers.
const (
	RoleMayor              = "mayor"
	RoleProspector         = "prospector"
	RoleProducer           = "producer"
	RoleArchitect          = "architect"
	RoleThievesGuildmaster = "thieves_guildmaster"
	RoleMerchant           = "merchant"
	RoleRecruiter          = "recruiter"
)

// Location identifiers.
const (
	LocationCityHall          = "city_hall"
	LocationThievesGuild      = "thieves_guild"
	LocationMarketplace       = "marketplace"
	LocationRecruitmentOffice = "recruitment_office"
	LocationPrintingPress     = "printing_press"
	LocationProductionHall    = "production_hall"
	LocationConstructionYard  = "construction_yard"
)

// Policy identifiers.
const (
	PolicyTaxation     = "taxation"
	PolicyCorruption   = "corruption"
	PolicyConscription = "conscription"
	PolicySubsidy      = "subsidy"
	PolicyMartialLaw   = "martial_law"
	PolicyCensorship   = "censorship"
	PolicyEmbargo      = "embargo"
	PolicyHandsOff     = "hands_off"
)

var roleCatalog = []Role{
	{ID: RoleMayor, Name: "Mayor", Description: "Political leader, starts each round, enacts policies"},
	{ID: RoleProspector, Name: "Prospector", Description: "Generates gold but cannot deposit VPs this round"},
	{ID: RoleProducer, Name: "Producer", Description: "Buildings produce +1 goods this round"},
	{ID: RoleArchitect, Name: "Architect", Description: "Construction discount, can place servants on occupied build spaces"},
	{ID: RoleThievesGuildmaster, Name: "Thieves Guildmaster", Description: "Blocks one action space, -1 gold assassination cost"},
	{ID: RoleMerchant, Name: "Merchant", Description: "Enables player-to-player trades, bonus trading actions"},
	{ID: RoleRecruiter, Name: "Recruiter", Description: "Grants an extra servant this round"},
}

var locationCatalog = []Location{
	{ID: LocationCityHall, Name: "City Hall", Description: "Lobby to adjust political influence (±1 per servant, 1 gold cost)"},
	{ID: LocationThievesGuild, Name: "Thieves Guild", Description: "Attempt assassination (5 gold base cost)"},
	{ID: LocationMarketplace, Name: "Marketplace", Description: "Trade goods for gold (1 good = 2 gold)"},
	{ID: LocationRecruitmentOffice, Name: "Recruitment Office", Description: "Recruit servants (3 gold) or draw henchman cards"},
	{ID: LocationPrintingPress, Name: "Printing Press", Description: "Draw or play news article cards"},
	{ID: LocationProductionHall, Name: "Production Hall", Description: "Produce goods based on buildings owned"},
	{ID: LocationConstructionYard, Name: "Construction Yard", Description: "Build buildings (costs vary, architect gets discount)"},
}

var policyCatalog = []Policy{
	{ID: PolicyTaxation, Name: "Taxation", Description: "All players pay 1 gold per servant to treasury"},
	{ID: PolicyCorruption, Name: "Corruption", Description: "Players may pay 3 gold for +1 influence or lose 1 influence for +2 gold"},
	{ID: PolicyConscription, Name: "Conscription", Description: "Players may spend influence to recruit servants; recruiting action unavailable"},
	{ID: PolicySubsidy, Name: "Subsidy", Description: "Building construction costs reduced by 3 gold this turn"},
	{ID: PolicyMartialLaw, Name: "Martial Law", Description: "All players lose 1 influence; Thieves Guild closed"},
	{ID: PolicyCensorship, Name: "Censorship", Description: "All players discard one news card; Printing Press closed"},
	{ID: PolicyEmbargo, Name: "Embargo", Description: "Marketplace closed; mayor chooses one goods type to discard"},
	{ID: PolicyHandsOff, Name: "Hands-off", Description: "All players draw and play one henchman card immediately"},
}

var goodsCatalog = []GoodsType{
	{ID: "grain", Name: "Grain", Value: 1, Description: "Basic agricultural produce"},
	{ID: "cloth", Name: "Cloth", Value: 2, Description: "Woven textiles"},
	{ID: "tools", Name: "Tools", Value: 3, Description: "Crafted implements"},
	{ID: "jewelry", Name: "Jewelry", Value: 4, Description: "Precious ornaments"},
	{ID: "spices", Name: "Spices", Value: 5, Description: "Exotic luxury goods"},
}

var buildingCatalog = []Building{
	{ID: "guardhouse", Name: "Guardhouse", Cost: 8, Description: "Increases assassination cost against you by +1 gold"},
	{ID: "trade_depot", Name: "Trade Depot", Cost: 10, Description: "Trade one additional good at Marketplace; enables player trading"},
	{ID: "library", Name: "Library", Cost: 6, Description: "Grants one free news article card per round"},
	{ID: "barracks", Name: "Barracks", Cost: 7, Description: "Grants one free henchman card per round"},
	{ID: "market_stalls", Name: "Market Stalls", Cost: 9, Description: "Increase gold gained from goods traded by +1"},
	{ID: "manufactory", Name: "Manufactory", Cost: 12, Description: "Produces +1 good each round"},
	{ID: "town_square", Name: "Town Square", Cost: 8, Description: "+1 political influence per Lobby action"},
	{ID: "spy_network", Name: "Spy Network", Cost: 11, Description: "Place servant to peek at another player's banked VPs or cards"},
}

var startingChoiceCatalog = []StartingChoice{
	{ID: "noble_heritage", Name: "Noble Heritage", Description: "Born to privilege and influence",
		Rewards: Rewards{Gold: 3, PoliticalInfluence: 2}},
	{ID: "merchant_background", Name: "Merchant Background", Description: "Started with trade connections and coin",
		Rewards: Rewards{Gold: 8, PoliticalInfluence: 0}},
	{ID: "military_service", Name: "Military Service", Description: "Earned respect through valor",
		Rewards: Rewards{Gold: 2, PoliticalInfluence: 1, Buildings: []string{"guardhouse"}}},
	{ID: "scholars_path", Name: "Scholar's Path", Description: "Knowledge is power",
		Rewards: Rewards{Gold: 1, PoliticalInfluence: 0, Buildings: []string{"library"}}},
	{ID: "artisan_guild", Name: "Artisan Guild", Description: "Master of crafts and construction",
		Rewards: Rewards{Gold: 6, PoliticalInfluence: 0, Buildings: []string{"manufactory"}}},
	{ID: "court_connections", Name: "Court Connections", Description: "Well-connected in political circles",
		Rewards: Rewards{Gold: 4, PoliticalInfluence: 3, HenchmanCards: 2}},
}

var (
	rolesByID           map[string]Role
	locationsByID       map[string]Location
	policiesByID        map[string]Policy
	goodsByID           map[string]GoodsType
	buildingsByID       map[string]Building
	startingChoicesByID map[string]StartingChoice
)

func init() {
	rolesByID = make(map[string]Role, len(roleCatalog))
	for _, r := range roleCatalog {
		rolesByID[r.ID] = r
	}
	locationsByID = make(map[string]Location, len(locationCatalog))
	for _, l := range locationCatalog {
		locationsByID[l.ID] = l
	}
	policiesByID = make(map[string]Policy, len(policyCatalog))
	for _, p := range policyCatalog {
		policiesByID[p.ID] = p
	}
	goodsByID = make(map[string]GoodsType, len(goodsCatalog))
	for _, g := range goodsCatalog {
		goodsByID[g.ID] = g
	}
	buildingsByID = make(map[string]Building, len(buildingCatalog))
	for _, b := range buildingCatalog {
		buildingsByID[b.ID] = b
	}
	startingChoicesByID = make(map[string]StartingChoice, len(startingChoiceCatalog))
	for _, c := range startingChoiceCatalog {
		startingChoicesByID[c.ID] = c
	}
}

// Roles returns the role catalogue in draft-display order.
func Roles() []Role { return roleCatalog }

// Locations returns the location catalogue in board order.
func Locations() []Location { return locationCatalog }

// Policies returns the policy catalogue.
func Policies() []Policy { return policyCatalog }

// GoodsTypes returns the goods catalogue in ascending value order.
func GoodsTypes() []GoodsType { return goodsCatalog }

// Buildings returns the building catalogue.
func Buildings() []Building { return buildingCatalog }

// StartingChoices returns the starting-choice templates.
func StartingChoices() []StartingChoice { return startingChoiceCatalog }

// RoleByID looks up a role by identifier.
func RoleByID(id string) (Role, bool) {
	r, ok := rolesByID[id]
	return r, ok
}

// LocationByID looks up a location by identifier.
func LocationByID(id string) (Location, bool) {
	l, ok := locationsByID[id]
	return l, ok
}

// PolicyByID looks up a policy by identifier.
func PolicyByID(id string) (Policy, bool) {
	p, ok := policiesByID[id]
	return p, ok
}

// GoodsTypeByID looks up a goods type by identifier.
func GoodsTypeByID(id string) (GoodsType, bool) {
	g, ok := goodsByID[id]
	return g, ok
}

// BuildingByID looks up a building by identifier.
func BuildingByID(id string) (Building, bool) {
	b, ok := buildingsByID[id]
	return b, ok
}

// StartingChoiceByID looks up a starting choice by identifier.
func StartingChoiceByID(id string) (StartingChoice, bool) {
	c, ok := startingChoicesByID[id]
	return c, ok
}
