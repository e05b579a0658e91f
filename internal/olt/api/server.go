/*
 * Copyright 2018-present Open Networking Foundation

 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at

 * http://www.apache.org/licenses/LICENSE-2.0

 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api exposes the operator surface over REST.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/opencord/olt/internal/olt/core"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var apiLogger = log.WithFields(log.Fields{
	"module": "API",
})

// Server serves the operator REST API on top of the access device
// service.
type Server struct {
	Address string
	Service core.AccessDeviceService
}

// SubscriberEntry is the wire form of one programmed service.
type SubscriberEntry struct {
	DeviceID types.DeviceID `json:"deviceId"`
	Port     uint32         `json:"port"`
	PortName string         `json:"portName"`
	CTag     types.VlanID   `json:"cTag"`
	STag     types.VlanID   `json:"sTag"`
	TpID     int            `json:"tpId"`
}

// StatusEntry is the wire form of one tracked service status.
type StatusEntry struct {
	SubscriberEntry
	DefaultEapolStatus    string `json:"defaultEapolStatus"`
	SubscriberFlowsStatus string `json:"subscriberFlowsStatus"`
	DhcpStatus            string `json:"dhcpStatus"`
}

type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Router builds the REST route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/v1/olts", s.listOlts).Methods(http.MethodGet)
	router.HandleFunc("/v1/subscribers", s.listSubscribers).Methods(http.MethodGet)
	router.HandleFunc("/v1/status", s.listStatus).Methods(http.MethodGet)
	router.HandleFunc("/v1/subscribers/{id}", s.provisionByID).Methods(http.MethodPost)
	router.HandleFunc("/v1/subscribers/{id}", s.removeByID).Methods(http.MethodDelete)
	router.HandleFunc("/v1/devices/{device}/ports/{port}/subscriber", s.provisionByConnectPoint).Methods(http.MethodPost)
	router.HandleFunc("/v1/devices/{device}/ports/{port}/subscriber", s.removeByConnectPoint).Methods(http.MethodDelete)
	router.HandleFunc("/v1/devices/{device}/flows", s.purgeDevice).Methods(http.MethodDelete)
	return router
}

// Serve blocks serving the API.
func (s *Server) Serve() error {
	apiLogger.WithFields(log.Fields{
		"address": s.Address,
	}).Info("REST API server listening")
	return http.ListenAndServe(s.Address, s.Router())
}

func (s *Server) listOlts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Service.FetchOlts())
}

func (s *Server) listSubscribers(w http.ResponseWriter, r *http.Request) {
	keys := s.Service.ProgrammedSubscribers()
	entries := make([]SubscriberEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, subscriberEntry(key))
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.Service.ConnectPointStatus()
	entries := make([]StatusEntry, 0, len(statuses))
	for key, status := range statuses {
		entries = append(entries, StatusEntry{
			SubscriberEntry:       subscriberEntry(key),
			DefaultEapolStatus:    status.DefaultEapolStatus.String(),
			SubscriberFlowsStatus: status.SubscriberFlowsStatus.String(),
			DhcpStatus:            status.DhcpStatus.String(),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) provisionByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sTag, cTag, tpID, err := tagSelectors(r)
	if err != nil {
		writeError(w, core.ErrBadRequest)
		return
	}
	writeResult(w, s.Service.ProvisionSubscriberByID(id, sTag, cTag, tpID))
}

func (s *Server) removeByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sTag, cTag, tpID, err := tagSelectors(r)
	if err != nil {
		writeError(w, core.ErrBadRequest)
		return
	}
	writeResult(w, s.Service.RemoveSubscriberByID(id, sTag, cTag, tpID))
}

func (s *Server) provisionByConnectPoint(w http.ResponseWriter, r *http.Request) {
	cp, err := connectPoint(r)
	if err != nil {
		writeError(w, core.ErrBadRequest)
		return
	}
	writeResult(w, s.Service.ProvisionSubscriber(cp))
}

func (s *Server) removeByConnectPoint(w http.ResponseWriter, r *http.Request) {
	cp, err := connectPoint(r)
	if err != nil {
		writeError(w, core.ErrBadRequest)
		return
	}
	writeResult(w, s.Service.RemoveSubscriber(cp))
}

func (s *Server) purgeDevice(w http.ResponseWriter, r *http.Request) {
	device := types.DeviceID(mux.Vars(r)["device"])
	s.Service.PurgeDeviceFlows(device)
	writeResult(w, nil)
}

func subscriberEntry(key types.ServiceKey) SubscriberEntry {
	return SubscriberEntry{
		DeviceID: key.Device,
		Port:     uint32(key.Port),
		PortName: key.PortName,
		CTag:     key.CTag,
		STag:     key.STag,
		TpID:     key.TpID,
	}
}

func connectPoint(r *http.Request) (types.ConnectPoint, error) {
	vars := mux.Vars(r)
	port, err := strconv.ParseUint(vars["port"], 10, 32)
	if err != nil {
		return types.ConnectPoint{}, err
	}
	return types.ConnectPoint{
		Device: types.DeviceID(vars["device"]),
		Port:   types.PortNumber(port),
	}, nil
}

func tagSelectors(r *http.Request) (*types.VlanID, *types.VlanID, *int, error) {
	query := r.URL.Query()
	var sTag, cTag *types.VlanID
	var tpID *int
	if v := query.Get("sTag"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 16)
		if err != nil {
			return nil, nil, nil, err
		}
		vlan := types.VlanID(parsed)
		sTag = &vlan
	}
	if v := query.Get("cTag"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 16)
		if err != nil {
			return nil, nil, nil, err
		}
		vlan := types.VlanID(parsed)
		cTag = &vlan
	}
	if v := query.Get("tpId"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, nil, nil, err
		}
		tpID = &parsed
	}
	return sTag, cTag, tpID, nil
}

func writeResult(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, core.ErrNotConfigured):
		code = http.StatusNotFound
	case errors.Is(err, core.ErrNotOwned):
		code = http.StatusConflict
	}
	writeJSON(w, code, response{Status: "error", Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		apiLogger.WithFields(log.Fields{"err": err}).Error("Cannot encode response")
	}
}
