package platform

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const shortIDLength = 10

// backupTimeLayout keeps artifact names sortable and free of path separators.
const backupTimeLayout = "2006-01-02T15-04-05.000Z"

var nonWord = regexp.MustCompile(`[\W]+`)

func NewID() string {
	return uuid.New().String()
}

func NewName(prefix string) string {
	b := make([]byte, shortIDLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = shortIDAlphabet[b[i]%byte(len(shortIDAlphabet))]
	}
	return prefix + string(b)
}

// BackupID builds the traceable artifact name
// {dbname}__{created}_{command}_{uuid}.{ext}, where dbname has every run of
// non-word characters replaced by an underscore.
func BackupID(dbName string, created time.Time, command, uid, ext string) string {
	return fmt.Sprintf("%s__%s_%s_%s.%s",
		nonWord.ReplaceAllString(dbName, "_"),
		created.UTC().Format(backupTimeLayout),
		command, uid, ext)
}
