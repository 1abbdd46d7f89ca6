package models

import "strings"

const (
	MinIntelligence = 80
	MaxIntelligence = 180

	// MaxDurationMinutes caps a session at one day, keeping the countdown in
	// range and inside the workspace token's lifetime.
	MaxDurationMinutes = 24 * 60

	DefaultPartnerName     = "Alice"
	DefaultIntelligence    = 120
	DefaultPersonality     = "Supportive, slightly strict but encouraging"
	DefaultDurationMinutes = 60
)

// StudyConfig is the full session configuration. The controller only lets it
// change during setup.
type StudyConfig struct {
	PartnerName     string          `json:"partner_name"`
	PartnerImage    *string         `json:"partner_image"`
	PartnerVideo    *string         `json:"partner_video"`
	Intelligence    int             `json:"intelligence"`
	Personality     string          `json:"personality"`
	DurationMinutes int             `json:"duration_minutes"`
	Materials       []StudyMaterial `json:"materials"`
}

func DefaultStudyConfig() StudyConfig {
	return StudyConfig{
		PartnerName:     DefaultPartnerName,
		Intelligence:    DefaultIntelligence,
		Personality:     DefaultPersonality,
		DurationMinutes: DefaultDurationMinutes,
		Materials:       []StudyMaterial{},
	}
}

// SetPartnerImage sets the avatar image and clears any video.
func (c *StudyConfig) SetPartnerImage(image string) {
	c.PartnerImage = &image
	c.PartnerVideo = nil
}

// SetPartnerVideo sets the avatar video and clears any image.
func (c *StudyConfig) SetPartnerVideo(video string) {
	c.PartnerVideo = &video
	c.PartnerImage = nil
}

func (c *StudyConfig) ClearAvatar() {
	c.PartnerImage = nil
	c.PartnerVideo = nil
}

// RemoveMaterial drops the material with the given id, keeping the order of
// the rest. It reports whether anything was removed.
func (c *StudyConfig) RemoveMaterial(id string) bool {
	for i, m := range c.Materials {
		if m.ID == id {
			c.Materials = append(c.Materials[:i:i], c.Materials[i+1:]...)
			return true
		}
	}
	return false
}

// Validate returns field-level problems, or nil when the config can start a session.
func (c *StudyConfig) Validate() map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(c.PartnerName) == "" {
		fields["partner_name"] = "Partner name is required"
	}
	if c.Intelligence < MinIntelligence || c.Intelligence > MaxIntelligence {
		fields["intelligence"] = "Intelligence must be between 80 and 180"
	}
	if c.DurationMinutes < 1 || c.DurationMinutes > MaxDurationMinutes {
		fields["duration_minutes"] = "Duration must be between 1 and 1440 minutes"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Clone copies the config deeply enough that the copy can be read while the
// original keeps changing.
func (c StudyConfig) Clone() StudyConfig {
	out := c
	out.Materials = append([]StudyMaterial(nil), c.Materials...)
	if c.PartnerImage != nil {
		v := *c.PartnerImage
		out.PartnerImage = &v
	}
	if c.PartnerVideo != nil {
		v := *c.PartnerVideo
		out.PartnerVideo = &v
	}
	return out
}

// ConfigView is the API representation of a StudyConfig.
type ConfigView struct {
	PartnerName     string            `json:"partner_name"`
	PartnerImage    *string           `json:"partner_image"`
	PartnerVideo    *string           `json:"partner_video"`
	Intelligence    int               `json:"intelligence"`
	Personality     string            `json:"personality"`
	DurationMinutes int               `json:"duration_minutes"`
	Materials       []MaterialSummary `json:"materials"`
}

func (c StudyConfig) View() ConfigView {
	materials := make([]MaterialSummary, len(c.Materials))
	for i, m := range c.Materials {
		materials[i] = m.Summary()
	}
	return ConfigView{
		PartnerName:     c.PartnerName,
		PartnerImage:    c.PartnerImage,
		PartnerVideo:    c.PartnerVideo,
		Intelligence:    c.Intelligence,
		Personality:     c.Personality,
		DurationMinutes: c.DurationMinutes,
		Materials:       materials,
	}
}

// UpdateConfigRequest carries partial persona updates. Nil fields are left alone.
type UpdateConfigRequest struct {
	PartnerName     *string `json:"partner_name"`
	Intelligence    *int    `json:"intelligence"`
	Personality     *string `json:"personality"`
	DurationMinutes *int    `json:"duration_minutes"`
}

type UpdateAvatarRequest struct {
	Image *string `json:"image"`
	Video *string `json:"video"`
}
