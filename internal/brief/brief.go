package brief

// Field names the 13 required brief fields plus the campaign sub-fields.
type Field string

const (
	FieldTargetAudience   Field = "target_audience"
	FieldPainArea         Field = "pain_area"
	FieldFunnelStage      Field = "funnel_stage"
	FieldComplianceLevel  Field = "compliance_level"
	FieldDesiredAction    Field = "desired_action"
	FieldValueProposition Field = "value_proposition"
	FieldKeyMessages      Field = "key_messages"
	FieldTone             Field = "tone"
	FieldConstraints      Field = "constraints"
	FieldPrograms         Field = "programs"
	FieldCenters          Field = "centers"
	FieldPricePoints      Field = "price_points"
	FieldPlatform         Field = "platform"

	FieldCampaignPrice    Field = "campaign_price"
	FieldCampaignDuration Field = "campaign_duration"
	FieldCampaignCenter   Field = "campaign_center"
	FieldCampaignDeadline Field = "campaign_deadline"
)

// RequiredFields is the fixed set of fields a complete brief must fill.
var RequiredFields = []Field{
	FieldTargetAudience, FieldPainArea, FieldFunnelStage, FieldComplianceLevel,
	FieldDesiredAction, FieldValueProposition, FieldKeyMessages, FieldTone,
	FieldConstraints, FieldPrograms, FieldCenters, FieldPricePoints, FieldPlatform,
}

// CampaignFields are required only when the brief declares a campaign.
var CampaignFields = []Field{
	FieldCampaignPrice, FieldCampaignDuration, FieldCampaignCenter, FieldCampaignDeadline,
}

// listFields holds the fields that accept multiple values. All other
// fields are single-valued; extracting several candidates for one of them
// is an ambiguity the user must resolve.
var listFields = map[Field]bool{
	FieldKeyMessages: true,
	FieldConstraints: true,
	FieldPrograms:    true,
	FieldCenters:     true,
	FieldPricePoints: true,
}

// FunnelStage values drive tone and call-to-action strength downstream.
const (
	FunnelAwareness     = "awareness"
	FunnelConsideration = "consideration"
	FunnelConversion    = "conversion"
	FunnelLoyalty       = "loyalty"
)

// Campaign holds conversion-campaign details, required only when the user
// declares one.
type Campaign struct {
	Price    string `json:"price,omitempty"`
	Duration string `json:"duration,omitempty"`
	Center   string `json:"center,omitempty"`
	Deadline string `json:"deadline,omitempty"`
}

// Brief is the structured content requirement accumulated conversationally
// during briefing. It is frozen once verification starts.
type Brief struct {
	TargetAudience   string   `json:"target_audience,omitempty"`
	PainArea         string   `json:"pain_area,omitempty"`
	FunnelStage      string   `json:"funnel_stage,omitempty"`
	ComplianceLevel  string   `json:"compliance_level,omitempty"`
	DesiredAction    string   `json:"desired_action,omitempty"`
	ValueProposition string   `json:"value_proposition,omitempty"`
	KeyMessages      []string `json:"key_messages,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	Constraints      []string `json:"constraints,omitempty"`
	Programs         []string `json:"programs,omitempty"`
	Centers          []string `json:"centers,omitempty"`
	PricePoints      []string `json:"price_points,omitempty"`
	Platform         string   `json:"platform,omitempty"`

	HasCampaign bool      `json:"has_campaign,omitempty"`
	Campaign    *Campaign `json:"campaign,omitempty"`
}

// value returns the current value(s) of a field.
func (b *Brief) value(f Field) []string {
	switch f {
	case FieldTargetAudience:
		return single(b.TargetAudience)
	case FieldPainArea:
		return single(b.PainArea)
	case FieldFunnelStage:
		return single(b.FunnelStage)
	case FieldComplianceLevel:
		return single(b.ComplianceLevel)
	case FieldDesiredAction:
		return single(b.DesiredAction)
	case FieldValueProposition:
		return single(b.ValueProposition)
	case FieldKeyMessages:
		return b.KeyMessages
	case FieldTone:
		return single(b.Tone)
	case FieldConstraints:
		return b.Constraints
	case FieldPrograms:
		return b.Programs
	case FieldCenters:
		return b.Centers
	case FieldPricePoints:
		return b.PricePoints
	case FieldPlatform:
		return single(b.Platform)
	case FieldCampaignPrice:
		if b.Campaign != nil {
			return single(b.Campaign.Price)
		}
	case FieldCampaignDuration:
		if b.Campaign != nil {
			return single(b.Campaign.Duration)
		}
	case FieldCampaignCenter:
		if b.Campaign != nil {
			return single(b.Campaign.Center)
		}
	case FieldCampaignDeadline:
		if b.Campaign != nil {
			return single(b.Campaign.Deadline)
		}
	}
	return nil
}

// set assigns a field. List fields take all values; single fields take the
// first.
func (b *Brief) set(f Field, values []string) {
	if len(values) == 0 {
		return
	}
	v := values[0]
	switch f {
	case FieldTargetAudience:
		b.TargetAudience = v
	case FieldPainArea:
		b.PainArea = v
	case FieldFunnelStage:
		b.FunnelStage = v
	case FieldComplianceLevel:
		b.ComplianceLevel = v
	case FieldDesiredAction:
		b.DesiredAction = v
	case FieldValueProposition:
		b.ValueProposition = v
	case FieldKeyMessages:
		b.KeyMessages = values
	case FieldTone:
		b.Tone = v
	case FieldConstraints:
		b.Constraints = values
	case FieldPrograms:
		b.Programs = values
	case FieldCenters:
		b.Centers = values
	case FieldPricePoints:
		b.PricePoints = values
	case FieldPlatform:
		b.Platform = v
	case FieldCampaignPrice:
		b.campaign().Price = v
	case FieldCampaignDuration:
		b.campaign().Duration = v
	case FieldCampaignCenter:
		b.campaign().Center = v
	case FieldCampaignDeadline:
		b.campaign().Deadline = v
	}
}

func (b *Brief) campaign() *Campaign {
	if b.Campaign == nil {
		b.Campaign = &Campaign{}
	}
	return b.Campaign
}

// Filled reports whether a field currently holds a non-empty value.
func (b *Brief) Filled(f Field) bool {
	for _, v := range b.value(f) {
		if v != "" {
			return true
		}
	}
	return false
}

// Missing returns the required fields (including conditional campaign
// fields) that are still empty.
func (b *Brief) Missing() []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if !b.Filled(f) {
			missing = append(missing, f)
		}
	}
	if b.HasCampaign {
		for _, f := range CampaignFields {
			if !b.Filled(f) {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// Complete reports whether all required fields are non-empty.
func (b *Brief) Complete() bool {
	return len(b.Missing()) == 0
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
