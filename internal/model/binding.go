package model

// Binding is the resolved mapping from a concept's roles to the anchors that
// realize them in one database.
type Binding interface {
	Kind() Kind
	Configuration() Configuration
}

// AttachmentBinding realizes an AttachmentConcept. GeneralClass is set for
// the one-table configurations, where the class values share a column.
type AttachmentBinding struct {
	Domain         string            `json:"domain"`
	Type           Configuration     `json:"type"`
	Template       string            `json:"template"`
	Concept        AttachmentConcept `json:"concept"`
	GeneralClass   *DBItem           `json:"general_class,omitempty"`
	Class1         DBItem            `json:"class1"`
	Class2         DBItem            `json:"class2"`
	CommonProperty DBItem            `json:"common_property"`
}

func (b *AttachmentBinding) Kind() Kind                   { return KindAttachment }
func (b *AttachmentBinding) Configuration() Configuration { return b.Type }

// RepairStats is the row bookkeeping of a Scope repair.
type RepairStats struct {
	EntityCount       int  `json:"entity_count"`
	BridgeRowsBefore  int  `json:"bridge_rows_before"`
	BridgeRowsAfter   int  `json:"bridge_rows_after"`
	LinksInserted     int  `json:"links_inserted"`
	ExtraLinkInserted bool `json:"extra_link_inserted"`
}

// ScopeBinding realizes a ScopeConcept.
type ScopeBinding struct {
	Template           string       `json:"template"`
	Concept            ScopeConcept `json:"concept"`
	Entities           DBItem       `json:"entities"`
	Components         DBItem       `json:"components"`
	SpecificComponent  DBItem       `json:"specific_component"`
	EntitiesComponents DBItem       `json:"entities_components"`
	Repair             RepairStats  `json:"repair"`
}

func (b *ScopeBinding) Kind() Kind                   { return KindScope }
func (b *ScopeBinding) Configuration() Configuration { return ScopeDefault }

// VagueBinding realizes a VagueConcept.
type VagueBinding struct {
	Type             Configuration `json:"type"`
	Template         string        `json:"template"`
	Concept          VagueConcept  `json:"concept"`
	Subject          DBItem        `json:"subject"`
	GeneralCategory1 DBItem        `json:"general_category1"`
	GeneralCategory2 DBItem        `json:"general_category2"`
}

func (b *VagueBinding) Kind() Kind                   { return KindVague }
func (b *VagueBinding) Configuration() Configuration { return b.Type }
