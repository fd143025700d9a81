// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import "strconv"

// EventType is the "what happened" code of an event. Codes outside of the
// named set are valid and are carried through unchanged.
type EventType int

const (
	UserLoggedIn              EventType = 1000
	UserChangedPassword       EventType = 1001
	UserUpdated2FA            EventType = 1002
	UserFailedLogIn           EventType = 1005
	CipherCreated             EventType = 1100
	CipherUpdated             EventType = 1101
	CipherDeleted             EventType = 1102
	CipherShared              EventType = 1106
	CollectionCreated         EventType = 1300
	CollectionUpdated         EventType = 1301
	CollectionDeleted         EventType = 1302
	GroupCreated              EventType = 1400
	GroupUpdated              EventType = 1401
	GroupDeleted              EventType = 1402
	OrganizationUserInvited   EventType = 1500
	OrganizationUserConfirmed EventType = 1501
	OrganizationUserUpdated   EventType = 1502
	OrganizationUserRemoved   EventType = 1503
	OrganizationUpdated       EventType = 1600
	PolicyUpdated             EventType = 1700
	SecretRetrieved           EventType = 2100
	SecretCreated             EventType = 2101
	SecretEdited              EventType = 2102
	SecretDeleted             EventType = 2103
	ProjectCreated            EventType = 2201
)

var eventTypeNames = map[EventType]string{
	UserLoggedIn:              "User_LoggedIn",
	UserChangedPassword:       "User_ChangedPassword",
	UserUpdated2FA:            "User_Updated2fa",
	UserFailedLogIn:           "User_FailedLogIn",
	CipherCreated:             "Cipher_Created",
	CipherUpdated:             "Cipher_Updated",
	CipherDeleted:             "Cipher_Deleted",
	CipherShared:              "Cipher_Shared",
	CollectionCreated:         "Collection_Created",
	CollectionUpdated:         "Collection_Updated",
	CollectionDeleted:         "Collection_Deleted",
	GroupCreated:              "Group_Created",
	GroupUpdated:              "Group_Updated",
	GroupDeleted:              "Group_Deleted",
	OrganizationUserInvited:   "OrganizationUser_Invited",
	OrganizationUserConfirmed: "OrganizationUser_Confirmed",
	OrganizationUserUpdated:   "OrganizationUser_Updated",
	OrganizationUserRemoved:   "OrganizationUser_Removed",
	OrganizationUpdated:       "Organization_Updated",
	PolicyUpdated:             "Policy_Updated",
	SecretRetrieved:           "Secret_Retrieved",
	SecretCreated:             "Secret_Created",
	SecretEdited:              "Secret_Edited",
	SecretDeleted:             "Secret_Deleted",
	ProjectCreated:            "Project_Created",
}

// String returns the name of the event type, or its numeric code when the
// type is not one of the named constants.
func (t EventType) String() string {
	if n, ok := eventTypeNames[t]; ok {
		return n
	}
	return strconv.Itoa(int(t))
}
