package submission

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"vanu-marketplace/internal/common/auth"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/identity"
	"vanu-marketplace/internal/models"
)

// ==========================
// Fakes
// ==========================

type memStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	audit   []string
	setErr  map[string]error
	mergeFn func(collection, id string) error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]byte{}, setErr: map[string]error{}}
}

func (m *memStore) Set(_ context.Context, collection, id string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setErr[collection]; err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.docs[collection+"/"+id] = raw
	return nil
}

func (m *memStore) Merge(_ context.Context, collection, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeFn != nil {
		if err := m.mergeFn(collection, id); err != nil {
			return err
		}
	}
	raw, ok := m.docs[collection+"/"+id]
	if !ok {
		return errors.NewNotFoundError(collection, id)
	}
	doc := map[string]interface{}{}
	_ = json.Unmarshal(raw, &doc)
	for k, v := range fields {
		doc[k] = v
	}
	m.docs[collection+"/"+id], _ = json.Marshal(doc)
	return nil
}

func (m *memStore) Get(_ context.Context, collection, id string, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[collection+"/"+id]
	if !ok {
		return errors.NewNotFoundError(collection, id)
	}
	return json.Unmarshal(raw, out)
}

func (m *memStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, collection+"/"+id)
	return nil
}

func (m *memStore) AppendAudit(_ context.Context, eventType, _, resourceID string, _ map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, eventType+":"+resourceID)
}

func (m *memStore) doc(collection, id string) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[collection+"/"+id]
	if !ok {
		return nil
	}
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func (m *memStore) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.docs {
		if strings.HasPrefix(k, collection+"/") {
			n++
		}
	}
	return n
}

// fakeAuthContext counts releases and records identity calls.
type fakeAuthContext struct {
	registered map[string]bool
	createErr  error
	created    []string
	deleted    []string
	releases   int
}

func (f *fakeAuthContext) CreateUser(_ context.Context, u *auth.User, _ string) (*auth.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.registered[u.Email] {
		return nil, errors.NewDuplicateIdentityError(u.Email)
	}
	out := *u
	out.ID = "uid-" + strings.Split(u.Email, "@")[0]
	f.created = append(f.created, out.ID)
	return &out, nil
}

func (f *fakeAuthContext) DeleteUser(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAuthContext) Release(context.Context) error {
	f.releases++
	return nil
}

type fakeAuthority struct {
	ac       *fakeAuthContext
	err      error
	acquires int
}

func (f *fakeAuthority) Acquire(context.Context) (identity.AuthContext, error) {
	f.acquires++
	if f.err != nil {
		return nil, f.err
	}
	return f.ac, nil
}

type fakeUploader struct {
	paths   []string
	removed []string
	failOn  string
}

func (f *fakeUploader) Upload(_ context.Context, _ []byte, path string) (string, error) {
	if f.failOn != "" && strings.Contains(path, f.failOn) {
		return "", errors.NewUploadError(path, stderrors.New("quota exceeded"))
	}
	f.paths = append(f.paths, path)
	return "https://blobs.test/" + path, nil
}

func (f *fakeUploader) Remove(_ context.Context, path string) error {
	f.removed = append(f.removed, path)
	return nil
}

type fakeProcess struct {
	messages []string
	vars     []map[string]interface{}
	err      error
}

func (f *fakeProcess) PublishMessage(_ context.Context, name, key string, vars map[string]interface{}, _ time.Duration) error {
	f.messages = append(f.messages, name+":"+key)
	f.vars = append(f.vars, vars)
	return f.err
}

type fakeStaging struct {
	files map[string][]models.Attachment
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{files: map[string][]models.Attachment{}}
}

func (f *fakeStaging) Put(_ context.Context, id string, files []models.Attachment) error {
	f.files[id] = files
	return nil
}

func (f *fakeStaging) Get(_ context.Context, id string) (map[string]models.Attachment, error) {
	files, ok := f.files[id]
	if !ok {
		return nil, errors.NewNotFoundError("staged files", id)
	}
	out := map[string]models.Attachment{}
	for _, a := range files {
		out[a.Name] = a
	}
	return out, nil
}

func (f *fakeStaging) Delete(_ context.Context, id string) error {
	delete(f.files, id)
	return nil
}

// ==========================
// Fixtures
// ==========================

func stockPointForm() *Form {
	f := NewForm()
	values := map[string]string{
		"applicantName": "Ram Singh",
		"gender":        "Male",
		"dob":           "1990-04-12",
		"qualification": "Graduate",
		"fatherName":    "Shyam Singh",
		"motherName":    "Sita Devi",
		"panNo":         "ABCDE1234F",
		"aadharNo":      "123412341234",
		"mobileNo":      "9876543210",
		"email":         "ram@test.com",
		"password":      "secret1",
		"village":       "Rampur",
		"post":          "Rampur",
		"panchayatName": "Rampur",
		"policeStation": "Godda",
		"blockName":     "Godda",
		"pinCode":       "814133",
		"district":      "Godda",
		"state":         "Jharkhand",
	}
	for k, v := range values {
		f.SetField(k, v)
	}
	for _, flag := range stockPointDocuments {
		f.SetFlag(flag, true)
	}
	f.AttachFile("photoFile", "ram.jpg", []byte{0xff, 0xd8, 0xff, 0xe0})
	return f
}

func kisanForm() *Form {
	f := NewForm()
	for _, k := range variants[VariantKisanCard].RequiredFields {
		f.SetField(k, "value-"+k)
	}
	f.SetField("name", "Geeta Kumari")
	f.AttachFile("photoFile", "me.jpg", []byte("photo"))
	f.AttachFile("aadharFile", "aadhar.pdf", []byte("aadhar"))
	f.AttachFile("panFile", "pan.pdf", []byte("pan"))
	return f
}
