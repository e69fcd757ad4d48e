package protocol

import (
	"encoding/xml"
	"net/http"
	"time"
)

const s3Xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// Machine-readable error codes across both XML protocols.
const (
	CodeNoSuchBucket     = "NoSuchBucket"
	CodeBucketNotEmpty   = "BucketNotEmpty"
	CodeNoSuchKey        = "NoSuchKey"
	CodeInvalidKeyPath   = "InvalidKeyPath"
	CodeInternalError    = "InternalError"
	CodeDBAlreadyExists  = "DBInstanceAlreadyExists"
	CodeDBNotFound       = "DBInstanceNotFound"
	CodeInvalidParameter = "InvalidParameterValue"
	CodeInvalidAction    = "InvalidAction"
)

type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

type BucketEntry struct {
	Name         string    `xml:"Name"`
	CreationDate time.Time `xml:"CreationDate"`
}

type ListAllMyBucketsResult struct {
	XMLName xml.Name      `xml:"ListAllMyBucketsResult"`
	Xmlns   string        `xml:"xmlns,attr"`
	Owner   Owner         `xml:"Owner"`
	Buckets []BucketEntry `xml:"Buckets>Bucket"`
}

// NewListBucketsResult wraps bucket entries in the storage protocol's
// list-buckets document with the synthetic owner the emulator reports.
func NewListBucketsResult(buckets []BucketEntry) ListAllMyBucketsResult {
	return ListAllMyBucketsResult{
		Xmlns:   s3Xmlns,
		Owner:   Owner{ID: "mock-owner-id", DisplayName: "mock-owner"},
		Buckets: buckets,
	}
}

type ObjectEntry struct {
	Key          string    `xml:"Key"`
	LastModified time.Time `xml:"LastModified"`
	ETag         string    `xml:"ETag"`
	Size         int64     `xml:"Size"`
	StorageClass string    `xml:"StorageClass"`
}

type ListBucketResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	Xmlns       string        `xml:"xmlns,attr"`
	Name        string        `xml:"Name"`
	Prefix      string        `xml:"Prefix"`
	KeyCount    int           `xml:"KeyCount"`
	MaxKeys     int           `xml:"MaxKeys"`
	IsTruncated bool          `xml:"IsTruncated"`
	Contents    []ObjectEntry `xml:"Contents"`
}

// NewListObjectsResult reports every key in one page; callers that want
// pagination have to do it themselves.
func NewListObjectsResult(bucket, prefix string, objects []ObjectEntry) ListBucketResult {
	return ListBucketResult{
		Xmlns:       s3Xmlns,
		Name:        bucket,
		Prefix:      prefix,
		KeyCount:    len(objects),
		MaxKeys:     1000,
		IsTruncated: false,
		Contents:    objects,
	}
}

type ErrorResponse struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// WriteXML renders any wire document with the XML content type.
func WriteXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	b, err := xml.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write(b)
}

// WriteError renders the shared <Error> document both XML protocols use.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteXML(w, status, ErrorResponse{Code: code, Message: message})
}
