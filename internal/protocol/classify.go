package protocol

import (
	"net/http"
	"net/url"
	"strings"
)

// Kind tags the protocol operation a request resolved to. The three emulated
// services share one listening port with no common envelope, so every request
// goes through exactly one classification pass.
type Kind int

const (
	KindNotFound Kind = iota
	KindHealth
	KindInvoke
	KindListBuckets
	KindStatus
	KindRDSAction
	KindBucket
	KindObject
)

// Op is the classification result consumed once by the dispatcher.
type Op struct {
	Kind    Kind
	Bucket  string
	Key     string
	ModelID string
	Params  url.Values // decoded form for database actions
}

// reservedNames never resolve as bucket names; they shadow routed paths.
var reservedNames = map[string]bool{
	"health":      true,
	"model":       true,
	"favicon.ico": true,
}

// Reserved reports whether a first path segment is off-limits as a bucket name.
func Reserved(name string) bool { return reservedNames[name] }

// Classify maps one inbound request onto exactly one operation. The ordering
// is load-bearing: the model-invoke and root-path rules must run before the
// generic bucket/object catch-all, or an invoke would read as a PUT to a
// bucket named "model" and a database action as an empty-key object write.
func Classify(r *http.Request) Op {
	path := strings.Trim(r.URL.Path, "/")
	var segs []string
	if path != "" {
		segs = strings.Split(path, "/")
	}

	// 1. liveness, any method
	if len(segs) == 1 && segs[0] == "health" {
		return Op{Kind: KindHealth}
	}

	// 2. model invocation
	if len(segs) == 3 && segs[0] == "model" && segs[2] == "invoke" && r.Method == http.MethodPost {
		return Op{Kind: KindInvoke, ModelID: segs[1]}
	}

	// 3+4. the ambiguous root path: storage SDKs list buckets with GET,
	// database actions arrive as form-encoded POSTs, everything else is a
	// generic status probe.
	if len(segs) == 0 {
		switch r.Method {
		case http.MethodGet:
			if sdkRequest(r) {
				return Op{Kind: KindListBuckets}
			}
			return Op{Kind: KindStatus}
		case http.MethodPost:
			ct := r.Header.Get("Content-Type")
			if strings.Contains(ct, "application/x-www-form-urlencoded") {
				if err := r.ParseForm(); err == nil && r.PostForm.Get("Action") != "" {
					return Op{Kind: KindRDSAction, Params: r.PostForm}
				}
			}
		}
		return Op{Kind: KindNotFound}
	}

	if Reserved(segs[0]) {
		return Op{Kind: KindNotFound}
	}

	// 5. bucket-level
	if len(segs) == 1 {
		return Op{Kind: KindBucket, Bucket: segs[0]}
	}

	// 6. object-level
	return Op{Kind: KindObject, Bucket: segs[0], Key: strings.Join(segs[1:], "/")}
}

// sdkRequest reports whether a root GET came from a storage SDK rather than a
// browser or probe: either a v4-signed Authorization header or a recognized
// SDK user agent.
func sdkRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256") {
		return true
	}
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	return strings.Contains(ua, "aws-sdk") || strings.Contains(ua, "boto3") || strings.Contains(ua, "minio")
}
