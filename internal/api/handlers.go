package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/arencloud/stratus/internal/objectstore"
	"github.com/arencloud/stratus/internal/protocol"
	"github.com/arencloud/stratus/internal/rds"
	"github.com/arencloud/stratus/internal/version"
)

const mockETag = `"mock-etag"`

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// dispatch consumes one classification result and fans out to the protocol
// handlers. This is the only place the tagged variant is switched on.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	op := protocol.Classify(r)
	switch op.Kind {
	case protocol.KindHealth:
		s.handleHealth(w, r)
	case protocol.KindInvoke:
		s.handleInvoke(w, r, op.ModelID)
	case protocol.KindListBuckets:
		s.handleListBuckets(w, r)
	case protocol.KindStatus:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "running",
			"info":    "local cloud service emulator (s3, bedrock, rds)",
			"version": version.Version,
		})
	case protocol.KindRDSAction:
		s.handleRDSAction(w, r, op.Params)
	case protocol.KindBucket:
		s.handleBucket(w, r, op.Bucket)
	case protocol.KindObject:
		s.handleObject(w, r, op.Bucket, op.Key)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found or unsupported service request"})
	}
}

// handleHealth reports liveness only; it checks no dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"services": []string{"s3", "bedrock", "rds"},
		"version":  version.Version,
		"counters": snapshotCounters(),
	})
}

// --- storage protocol ---

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.store.ListBuckets()
	if err != nil {
		protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternalError, err.Error())
		return
	}
	entries := make([]protocol.BucketEntry, 0, len(buckets))
	for _, b := range buckets {
		entries = append(entries, protocol.BucketEntry{Name: b.Name, CreationDate: b.Created})
	}
	protocol.WriteXML(w, http.StatusOK, protocol.NewListBucketsResult(entries))
}

func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	switch r.Method {
	case http.MethodPut:
		if err := s.store.CreateBucket(bucket); err != nil {
			s.storeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if err := s.store.DeleteBucket(bucket); err != nil {
			s.storeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		prefix := r.URL.Query().Get("prefix")
		objects, err := s.store.List(bucket, prefix)
		if err != nil {
			s.storeError(w, err)
			return
		}
		entries := make([]protocol.ObjectEntry, 0, len(objects))
		for _, o := range objects {
			entries = append(entries, protocol.ObjectEntry{
				Key:          o.Key,
				LastModified: o.ModTime,
				ETag:         mockETag,
				Size:         o.Size,
				StorageClass: "STANDARD",
			})
		}
		protocol.WriteXML(w, http.StatusOK, protocol.NewListObjectsResult(bucket, prefix, entries))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unsupported bucket operation"})
	}
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	switch r.Method {
	case http.MethodPut:
		defer r.Body.Close()
		if err := s.store.Put(bucket, key, r.Body); err != nil {
			s.storeError(w, err)
			return
		}
		w.Header().Set("ETag", mockETag)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		rc, info, err := s.store.Get(bucket, key)
		if err != nil {
			s.storeError(w, err)
			return
		}
		defer rc.Close()
		setObjectHeaders(w, key, info)
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, rc)
	case http.MethodDelete:
		if err := s.store.Delete(bucket, key); err != nil {
			s.storeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodHead:
		info, err := s.store.Head(bucket, key)
		if err != nil {
			// HEAD carries no body, status only
			if errors.Is(err, objectstore.ErrNoObject) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		setObjectHeaders(w, key, info)
		w.WriteHeader(http.StatusOK)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unsupported object operation"})
	}
}

func setObjectHeaders(w http.ResponseWriter, key string, info objectstore.ObjectInfo) {
	w.Header().Set("Content-Type", objectstore.ContentType(key))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", mockETag)
}

// storeError maps store sentinels onto the storage protocol's error documents.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, objectstore.ErrNoBucket):
		protocol.WriteError(w, http.StatusNotFound, protocol.CodeNoSuchBucket, "The specified bucket does not exist")
	case errors.Is(err, objectstore.ErrNoObject):
		protocol.WriteError(w, http.StatusNotFound, protocol.CodeNoSuchKey, "The specified key does not exist")
	case errors.Is(err, objectstore.ErrBucketNotEmpty):
		protocol.WriteError(w, http.StatusConflict, protocol.CodeBucketNotEmpty, "The bucket you tried to delete is not empty")
	case errors.Is(err, objectstore.ErrInvalidKey), errors.Is(err, objectstore.ErrReservedName):
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidKeyPath, err.Error())
	default:
		protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternalError, err.Error())
	}
}

// --- database protocol ---

func (s *Server) handleRDSAction(w http.ResponseWriter, r *http.Request, params url.Values) {
	action := params.Get("Action")
	switch action {
	case "CreateDBInstance":
		s.handleCreateDBInstance(w, r, params)
	case "DescribeDBInstances":
		s.handleDescribeDBInstances(w, r, params)
	case "DeleteDBInstance":
		s.handleDeleteDBInstance(w, r, params)
	default:
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidAction, "Action "+action+" not supported")
	}
}

func formValue(params url.Values, key, def string) string {
	if v := params.Get(key); v != "" {
		return v
	}
	return def
}

func (s *Server) handleCreateDBInstance(w http.ResponseWriter, r *http.Request, params url.Values) {
	if params.Get("DBInstanceIdentifier") == "" {
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidParameter, "DBInstanceIdentifier is required")
		return
	}
	p := rds.CreateParams{
		ID:             params.Get("DBInstanceIdentifier"),
		Engine:         formValue(params, "Engine", "postgres"),
		MasterUsername: formValue(params, "MasterUsername", "postgres"),
		MasterPassword: formValue(params, "MasterUserPassword", "password"),
		DBName:         formValue(params, "DBName", "mydb"),
	}
	inst, err := s.rds.Create(r.Context(), p)
	if err != nil {
		s.rdsError(w, p.ID, p.Engine, err)
		return
	}
	protocol.WriteXML(w, http.StatusOK, protocol.NewCreateDBInstanceResponse(inst))
}

func (s *Server) handleDescribeDBInstances(w http.ResponseWriter, r *http.Request, params url.Values) {
	id := params.Get("DBInstanceIdentifier")
	instances, err := s.rds.Describe(id)
	if err != nil {
		s.rdsError(w, id, "", err)
		return
	}
	protocol.WriteXML(w, http.StatusOK, protocol.NewDescribeDBInstancesResponse(instances))
}

func (s *Server) handleDeleteDBInstance(w http.ResponseWriter, r *http.Request, params url.Values) {
	id := params.Get("DBInstanceIdentifier")
	inst, err := s.rds.Delete(r.Context(), id)
	if err != nil {
		s.rdsError(w, id, "", err)
		return
	}
	protocol.WriteXML(w, http.StatusOK, protocol.NewDeleteDBInstanceResponse(inst))
}

// rdsError maps orchestrator sentinels onto the database protocol's error documents.
func (s *Server) rdsError(w http.ResponseWriter, id, engine string, err error) {
	switch {
	case errors.Is(err, rds.ErrExists):
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeDBAlreadyExists, "DB Instance "+id+" already exists")
	case errors.Is(err, rds.ErrNotFound):
		protocol.WriteError(w, http.StatusNotFound, protocol.CodeDBNotFound, "DBInstance "+id+" not found")
	case errors.Is(err, rds.ErrInvalidEngine):
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidParameter, "Engine "+engine+" not supported")
	default:
		protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternalError, err.Error())
	}
}

// --- inference protocol ---

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request, modelID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}
	res := s.inference.Invoke(r.Context(), modelID, body)
	writeJSON(w, res.Status, res.Body)
}
