package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/matryer/is"
)

func TestListAfterCursor_SendsCursorAndNormalizesSingleObject(t *testing.T) {
	is := is.New(t)

	var got listRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Method, http.MethodPost)
		is.Equal(r.URL.Path, "/nedlastning/objekter")
		b, _ := io.ReadAll(r.Body)
		is.NoErr(json.Unmarshal(b, &got))
		w.Write([]byte(`{"id": 42, "municipalityNumber": "0301"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	after := int64(41)
	objects, err := c.ListAfterCursor(context.Background(), models.EntityParcel, &after, MunicipalityFilter([]string{"0301"}), 10)
	is.NoErr(err)

	is.Equal(len(objects), 1)
	is.Equal(objects[0].ID, int64(42))
	is.Equal(objects[0].Type, models.EntityParcel)
	is.Equal(got.EntityType, models.EntityParcel)
	is.Equal(*got.AfterID, int64(41))
	is.Equal(got.MaxCount, 10)
	is.Equal(string(got.Filter), `{"kommunenummer":["0301"]}`)
}

func TestListAfterCursor_ListAndNullBodies(t *testing.T) {
	is := is.New(t)

	body := `[{"id": 1}, {"id": 2}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	objects, err := c.ListAfterCursor(context.Background(), models.EntityBuilding, nil, NoFilter, 10)
	is.NoErr(err)
	is.Equal(len(objects), 2)
	is.Equal(objects[1].ID, int64(2))

	body = `null`
	objects, err = c.ListAfterCursor(context.Background(), models.EntityBuilding, nil, NoFilter, 10)
	is.NoErr(err)
	is.Equal(len(objects), 0)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusBadGateway, body: ``, want: ErrTransport},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad filter"}`, want: ErrProtocol},
		{name: "malformed body", status: http.StatusOK, body: `{"id": `, want: ErrProtocol},
		{name: "object without id", status: http.StatusOK, body: `[{"name": "x"}]`, want: ErrProtocol},
		{name: "scalar body", status: http.StatusOK, body: `17`, want: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL).FetchByIDs(context.Background(), models.EntityBuilding, []int64{1})
			is.True(errors.Is(err, tt.want))
		})
	}
}

func TestHTTPClient_UnreachableIsTransportError(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url).ListAfterCursor(context.Background(), models.EntityParcel, nil, NoFilter, 1)
	is.True(errors.Is(err, ErrTransport))
}

func TestFetchOne(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Method, http.MethodGet)
		if r.URL.Path == "/store/objekter/person/7" {
			w.Write([]byte(`{"id": 7, "givenName": "Kari"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	obj, err := c.FetchOne(context.Background(), models.EntityPerson, 7)
	is.NoErr(err)
	is.Equal(obj.ID, int64(7))

	_, err = c.FetchOne(context.Background(), models.EntityPerson, 8)
	is.True(errors.Is(err, ErrNotFound))
}

func TestFindRelated(t *testing.T) {
	is := is.New(t)

	var got relationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/relasjoner/parcel-units")
		is.NoErr(json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"1": [10, 11], "2": []}`))
	}))
	defer srv.Close()

	related, err := NewHTTPClient(srv.URL).FindRelated(context.Background(), models.RelationParcelUnits, []int64{1, 2})
	is.NoErr(err)
	is.Equal(got.OwnerIDs, []int64{1, 2})
	is.Equal(related[1], []int64{10, 11})
	is.Equal(len(related[2]), 0)
}

func TestFindRelated_NonNumericKeyIsProtocolError(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"abc": [1]}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).FindRelated(context.Background(), models.RelationParcelUnits, []int64{1})
	is.True(errors.Is(err, ErrProtocol))
}

func TestFetchByIDsIgnoreMissing_SendsFlag(t *testing.T) {
	is := is.New(t)

	var got fetchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.NoErr(json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	objects, err := NewHTTPClient(srv.URL, Debug(true)).FetchByIDsIgnoreMissing(context.Background(), models.EntityAddress, []int64{3, 4})
	is.NoErr(err)
	is.Equal(len(objects), 0)
	is.True(got.IgnoreMissing)
	is.Equal(got.IDs, []int64{3, 4})
}

func TestFetchByIDs_NotFoundChunk(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	client := NewHTTPClient(srv.URL)
	ctx := context.Background()

	objects, err := client.FetchByIDsIgnoreMissing(ctx, models.EntityBuilding, []int64{7, 8})
	is.NoErr(err)
	is.Equal(len(objects), 0)

	_, err = client.FetchByIDs(ctx, models.EntityBuilding, []int64{7, 8})
	is.True(errors.Is(err, ErrNotFound))
}
