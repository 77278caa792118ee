package types

// Sector is the closed category label assigned to a cluster.
type Sector string

const (
	SectorDevTools    Sector = "dev_tools"
	SectorAILLM       Sector = "ai_llm"
	SectorBusiness    Sector = "business_pme"
	SectorEducation   Sector = "education_learning"
	SectorHealth      Sector = "health_wellbeing"
	SectorConsumer    Sector = "consumer_lifestyle"
	SectorCreator     Sector = "creator_economy"
	SectorWorkplace   Sector = "workplace_hr"
	SectorFinance     Sector = "finance_accounting"
	SectorLegal       Sector = "legal_compliance"
	SectorMarketing   Sector = "marketing_sales"
	SectorEcommerce   Sector = "ecommerce_retail"
	SectorOther       Sector = "other"
)

var allSectors = []Sector{
	SectorDevTools,
	SectorAILLM,
	SectorBusiness,
	SectorEducation,
	SectorHealth,
	SectorConsumer,
	SectorCreator,
	SectorWorkplace,
	SectorFinance,
	SectorLegal,
	SectorMarketing,
	SectorEcommerce,
	SectorOther,
}

// AllSectors returns the full label set in a stable order.
func AllSectors() []Sector {
	out := make([]Sector, len(allSectors))
	copy(out, allSectors)
	return out
}

// IsValid checks if the sector value is valid
func (s Sector) IsValid() bool {
	for _, v := range allSectors {
		if s == v {
			return true
		}
	}
	return false
}

// ParseSector coerces arbitrary classifier output to a valid label.
// Unknown labels map to SectorOther rather than failing the run.
func ParseSector(raw string) Sector {
	s := Sector(raw)
	if s.IsValid() {
		return s
	}
	return SectorOther
}
