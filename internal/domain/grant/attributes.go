package grant

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain/predicate"
)

// Attribute names in the vector index entity.
const (
	AttrID                  = "grant_id"
	AttrSponsor             = "sponsor"
	AttrTitle               = "title"
	AttrSummary             = "summary"
	AttrApplicantCategories = "applicant_categories"
	AttrStates              = "states"
	AttrFundingCategories   = "funding_categories"
	AttrMinAward            = "min_award"
	AttrMaxAward            = "max_award"
	AttrAwardCeiling        = "award_ceiling"
	AttrDeadline            = "deadline"
	AttrEssayRequired       = "essay_required"
	AttrIngestedAt          = "ingested_at"
	AttrExpiresAt           = "expires_at"
)

// AnyTag marks an empty allow-list in the index.
const AnyTag = predicate.EmptyListMarker

// TagSeparator joins multi-valued tag attributes.
const TagSeparator = ","

// Attributes flattens the opportunity into the index attribute bag.
// Times are unix seconds; a zero time is stored as 0.
func (o Opportunity) Attributes() map[string]string {
	c := o.Constraints
	return map[string]string{
		AttrID:                  o.ID,
		AttrSponsor:             o.Sponsor,
		AttrTitle:               o.Title,
		AttrSummary:             o.NarrativeText(),
		AttrApplicantCategories: joinTags(c.ApplicantCategories),
		AttrStates:              joinTags(c.States),
		AttrFundingCategories:   joinTags(c.FundingCategories),
		AttrMinAward:            strconv.FormatFloat(c.MinAward, 'f', -1, 64),
		AttrMaxAward:            strconv.FormatFloat(c.MaxAward, 'f', -1, 64),
		AttrAwardCeiling:        strconv.FormatFloat(o.AwardCeiling(), 'f', -1, 64),
		AttrDeadline:            unixString(c.Deadline),
		AttrEssayRequired:       strconv.FormatBool(c.EssayRequired),
		AttrIngestedAt:          unixString(o.IngestedAt),
		AttrExpiresAt:           unixString(o.ExpiresAt),
	}
}

// FromAttributes rebuilds an opportunity from an untyped index attribute bag.
// It never fails: absent or malformed attributes fall back to empty or zero,
// which the eligibility rules read as "unconstrained". fallbackID is used when
// the bag carries no id.
func FromAttributes(fallbackID string, attrs map[string]string) Opportunity {
	id := strings.TrimSpace(attrs[AttrID])
	if id == "" {
		id = fallbackID
	}
	minAward := parseAmount(attrs[AttrMinAward])
	maxAward := parseAmount(attrs[AttrMaxAward])
	if maxAward > 0 && minAward > maxAward {
		minAward = 0
	}
	return Opportunity{
		ID:       id,
		Sponsor:  attrs[AttrSponsor],
		Title:    attrs[AttrTitle],
		Summary:  attrs[AttrSummary],
		VectorID: fallbackID,
		Constraints: Constraints{
			ApplicantCategories: splitTags(attrs[AttrApplicantCategories]),
			States:              splitStates(attrs[AttrStates]),
			FundingCategories:   splitTags(attrs[AttrFundingCategories]),
			MinAward:            minAward,
			MaxAward:            maxAward,
			Deadline:            parseUnix(attrs[AttrDeadline]),
			EssayRequired:       parseBool(attrs[AttrEssayRequired]),
		},
		IngestedAt: parseUnix(attrs[AttrIngestedAt]),
		ExpiresAt:  parseUnix(attrs[AttrExpiresAt]),
	}
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return AnyTag
	}
	return strings.Join(tags, TagSeparator)
}

func splitTags(s string) []string {
	var out []string
	for _, part := range strings.Split(s, TagSeparator) {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" || p == AnyTag {
			continue
		}
		out = append(out, p)
	}
	return out
}

func splitStates(s string) []string {
	tags := splitTags(s)
	for i := range tags {
		tags[i] = strings.ToUpper(tags[i])
	}
	return tags
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseUnix(s string) time.Time {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

func unixString(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}
