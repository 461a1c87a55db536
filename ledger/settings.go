package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// SettingField enumerates the account fields a user may change.
type SettingField int

const (
	SettingStrategy SettingField = iota + 1
	SettingAvatar
	SettingBotEnabled
)

func (f SettingField) String() string {
	switch f {
	case SettingStrategy:
		return "strategy"
	case SettingAvatar:
		return "avatar"
	case SettingBotEnabled:
		return "bot_enabled"
	}
	return fmt.Sprintf("SettingField(%d)", int(f))
}

// SettingsUpdate changes exactly one account field. Build it with
// SetStrategy, SetAvatar, SetBotEnabled or ParseSetting.
type SettingsUpdate struct {
	Field SettingField
	Text  string
	Flag  bool
}

const maxSettingText = 256

func SetStrategy(s string) SettingsUpdate {
	return SettingsUpdate{Field: SettingStrategy, Text: s}
}

func SetAvatar(s string) SettingsUpdate {
	return SettingsUpdate{Field: SettingAvatar, Text: s}
}

func SetBotEnabled(on bool) SettingsUpdate {
	return SettingsUpdate{Field: SettingBotEnabled, Flag: on}
}

// ParseSetting builds an update from a field name and its textual value.
func ParseSetting(field, value string) (SettingsUpdate, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "strategy":
		return SetStrategy(value), nil
	case "avatar":
		return SetAvatar(value), nil
	case "bot_enabled", "bot":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return SettingsUpdate{}, fmt.Errorf("%w: bot_enabled: %q is not a boolean", ErrInvalidSetting, value)
		}
		return SetBotEnabled(on), nil
	}
	return SettingsUpdate{}, fmt.Errorf("%w: unknown field %q", ErrInvalidSetting, field)
}

func (u SettingsUpdate) Validate() error {
	switch u.Field {
	case SettingStrategy, SettingAvatar:
		if len(u.Text) > maxSettingText {
			return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidSetting, u.Field, maxSettingText)
		}
		return nil
	case SettingBotEnabled:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidSetting, u.Field)
}
