// Path: internal/oai/responses.go
package oai

import (
	"encoding/xml"
	"fmt"
)

// Wire structs for the ListRecords response. Element names match on local
// name only, which keeps the decoder forgiving about namespace prefixes and
// silently ignores elements we do not recognize.

type listRecordsResponse struct {
	XMLName     xml.Name       `xml:"OAI-PMH"`
	Error       *protocolError `xml:"error"`
	ListRecords struct {
		Records         []xmlRecord `xml:"record"`
		ResumptionToken string      `xml:"resumptionToken"`
	} `xml:"ListRecords"`
}

// protocolError is an OAI-PMH level error returned with HTTP 200.
type protocolError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("OAI-PMH error (%s): %s", e.Code, e.Message)
}

// noRecordsMatch is the protocol's way of saying the query legitimately
// selected nothing. It is an empty result, not a failure.
const errNoRecordsMatch = "noRecordsMatch"

type xmlRecord struct {
	Header struct {
		Identifier string   `xml:"identifier"`
		Datestamp  string   `xml:"datestamp"`
		SetSpecs   []string `xml:"setSpec"`
		Status     string   `xml:"status,attr"`
	} `xml:"header"`
	Metadata struct {
		DC dublinCore `xml:"dc"`
	} `xml:"metadata"`
}

// dublinCore collects the oai_dc fields the harvester persists. Description
// and type are single-valued in the data model; when repeated on the wire the
// last occurrence wins.
type dublinCore struct {
	Creators     []string `xml:"creator"`
	Dates        []string `xml:"date"`
	Descriptions []string `xml:"description"`
	Identifiers  []string `xml:"identifier"`
	Subjects     []string `xml:"subject"`
	Titles       []string `xml:"title"`
	Types        []string `xml:"type"`
}
