package criteria

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// CaseID derives the deterministic identity of one snapshot row from the
// client, their therapist and the snapshot date. The same triple always
// yields the same digest, so re-runs over identical input produce
// identical rows.
func CaseID(clientID, therapistID string, ts time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s#%s#%s", clientID, therapistID, ts.Format("2006-01-02"))))
	return hex.EncodeToString(sum[:])
}
