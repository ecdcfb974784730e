package entities

type User struct {
	// Lowercased wallet address, immutable primary key.
	Address           string `gorm:"type:varchar(255);primary_key" json:"address"`
	ChecksumAddress   string `gorm:"type:varchar(255)" json:"checksum_address"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
	VerificationLevel string `gorm:"default:none" json:"verification_level"` // "none", "device", "orb"

	Timestamp
}
