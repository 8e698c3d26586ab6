// Package i18n turns errors and feed states into short user-facing messages.
// Raw errors are never shown to users; they go to the log instead.
package i18n

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/stevemurr/story-sync/feed"
	"github.com/stevemurr/story-sync/gateway"
	"github.com/stevemurr/story-sync/reportdb"
)

// Message keys. The English text doubles as the key.
const (
	MsgNetwork         = "Could not reach the server."
	MsgRejected        = "The server rejected the request."
	MsgUnauthenticated = "Please log in first."
	MsgNoToken         = "Login failed: no access token received."
	MsgInvalidInput    = "Some required fields are missing."
	MsgStorage         = "Local storage is not available."
	MsgWrite           = "Could not save data on this device."
	MsgNotFound        = "Story not found."
	MsgUnknown         = "Something went wrong."
	MsgDegraded        = "Failed to load stories."
	MsgFeedTitle       = "Stories"
	MsgNoSaved         = "No saved stories."
	MsgSaved           = "Story saved."
	MsgUnsaved         = "Story removed from saved."
	MsgPosted          = "Story uploaded."
	MsgLoggedIn        = "Login successful."
	MsgLoggedOut       = "Logged out."
	MsgPhotoUnreadable = "Could not read the photo file."
	MsgRegistered      = "Account created."
	MsgSubscribed      = "Push notifications enabled."
	MsgUnsubscribed    = "Push notifications disabled."
)

var indonesian = map[string]string{
	MsgNetwork:         "Tidak dapat terhubung ke server.",
	MsgRejected:        "Permintaan ditolak oleh server.",
	MsgUnauthenticated: "Silakan login terlebih dahulu.",
	MsgNoToken:         "Login gagal: token akses tidak diterima.",
	MsgInvalidInput:    "Beberapa data wajib belum diisi.",
	MsgStorage:         "Penyimpanan lokal tidak tersedia.",
	MsgWrite:           "Gagal menyimpan data di perangkat ini.",
	MsgNotFound:        "Cerita tidak ditemukan.",
	MsgUnknown:         "Terjadi kesalahan.",
	MsgDegraded:        "Gagal memuat data.",
	MsgFeedTitle:       "Daftar Cerita",
	MsgNoSaved:         "Tidak ada cerita yang tersimpan.",
	MsgSaved:           "Cerita telah disimpan.",
	MsgUnsaved:         "Cerita dihapus dari simpanan.",
	MsgPosted:          "Cerita berhasil diupload!",
	MsgLoggedIn:        "Login berhasil.",
	MsgLoggedOut:       "Berhasil logout.",
	MsgPhotoUnreadable: "File foto tidak dapat dibaca.",
	MsgRegistered:      "Akun berhasil dibuat.",
	MsgSubscribed:      "Langganan push notification berhasil diaktifkan.",
	MsgUnsubscribed:    "Langganan push notification berhasil dinonaktifkan.",
}

var supported = []language.Tag{language.English, language.Indonesian}

var (
	matcher = language.NewMatcher(supported)
	cat     = buildCatalog()
)

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, id := range indonesian {
		if err := b.SetString(language.English, key, key); err != nil {
			panic(err)
		}
		if err := b.SetString(language.Indonesian, key, id); err != nil {
			panic(err)
		}
	}
	return b
}

// Printer returns a printer for the closest supported language to lang.
// Unknown or empty languages fall back to English.
func Printer(lang string) *message.Printer {
	tag := language.English
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, conf := matcher.Match(parsed)
			if conf != language.No {
				tag = supported[idx]
			}
		}
	}
	return message.NewPrinter(tag, message.Catalog(cat))
}

// T translates a message key.
func T(lang, key string) string {
	return Printer(lang).Sprintf(key)
}

// keyFor maps an error to its message key.
func keyFor(err error) string {
	switch {
	case errors.Is(err, feed.ErrNotFound):
		return MsgNotFound
	case errors.Is(err, gateway.ErrNoToken):
		return MsgNoToken
	case errors.Is(err, gateway.ErrUnauthenticated):
		return MsgUnauthenticated
	case errors.Is(err, gateway.ErrInvalidInput):
		return MsgInvalidInput
	case errors.Is(err, gateway.ErrNetwork):
		return MsgNetwork
	case errors.Is(err, gateway.ErrServerRejected):
		return MsgRejected
	case errors.Is(err, reportdb.ErrStorageUnavailable):
		return MsgStorage
	case errors.Is(err, reportdb.ErrWrite):
		return MsgWrite
	default:
		return MsgUnknown
	}
}

// Error returns the short localized message for err, or "" for nil.
func Error(lang string, err error) string {
	if err == nil {
		return ""
	}
	return T(lang, keyFor(err))
}
