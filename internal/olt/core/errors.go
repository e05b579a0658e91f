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

package core

import "errors"

// Domain error kinds. Transient conditions stay inside the reconciler;
// the rest surface to the caller or the event sink.
var (
	// ErrNotOwned marks a request for a device another instance drives.
	ErrNotOwned = errors.New("device is not owned by this instance")
	// ErrNotConfigured marks a subscriber or OLT absent from the
	// subscriber information service.
	ErrNotConfigured = errors.New("entry not found in subscriber information service")
	// ErrMeterUnavailable marks a flow emission attempted before its
	// meter was confirmed.
	ErrMeterUnavailable = errors.New("required meter is not installed yet")
	// ErrMacPending marks a provisioning attempt waiting on MAC
	// learning.
	ErrMacPending = errors.New("mac address has not been learned yet")
	// ErrBadRequest marks malformed operator input.
	ErrBadRequest = errors.New("malformed provisioning request")
)
