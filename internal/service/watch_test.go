package service

import "testing"

func TestMatchJobs(t *testing.T) {
	patterns := []watchPattern{
		{jobID: "zips", glob: "/drop/*.zip"},
		{jobID: "one", glob: "/drop/parcels.zip"},
		{jobID: "csv", glob: "/drop/*.csv"},
	}

	got := matchJobs(patterns, "/drop/parcels.zip")
	if len(got) != 2 || got[0] != "zips" || got[1] != "one" {
		t.Fatalf("unexpected matches %v", got)
	}
	if got := matchJobs(patterns, "/drop/sub/parcels.zip"); len(got) != 0 {
		t.Fatalf("glob must not cross directories, got %v", got)
	}
}
