package models

const CursorKeyPrefix = "cursor:"

func CursorKey(source string) string {
	return CursorKeyPrefix + source
}
