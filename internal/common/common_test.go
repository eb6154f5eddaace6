package common

import (
	"fmt"
	"testing"
)

func TestConstantsValues(t *testing.T) {
	if ContentTypeJSON != "application/json" {
		t.Fatalf("ContentTypeJSON = %q", ContentTypeJSON)
	}
	if HeaderAPIKeyDefault != "X-Api-Key" {
		t.Fatalf("HeaderAPIKeyDefault = %q", HeaderAPIKeyDefault)
	}
	if APIBasePath != "api/v2/ClientIntegration/" {
		t.Fatalf("APIBasePath = %q", APIBasePath)
	}
	if got := fmt.Sprintf(FormMetadataValue, 2, 0); got != "InputFiles[2].FileMetadata[0].Value" {
		t.Fatalf("FormMetadataValue = %q", got)
	}
	if got := fmt.Sprintf(JobLogNameFormat, 3); got != "joblog_3.txt" {
		t.Fatalf("JobLogNameFormat = %q", got)
	}
	if StatusCompletedSuccessful[:len(StatusCompletedPrefix)] != StatusCompletedPrefix {
		t.Fatalf("success status must carry the completed prefix")
	}
	if DefaultErrorCloseSeconds <= 0 || DefaultPollingRateSeconds <= 0 {
		t.Fatalf("defaults should be positive")
	}
	if UnseparatedJob >= 0 {
		t.Fatalf("unseparated marker must not collide with a job index")
	}
}
