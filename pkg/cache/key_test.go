package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "simple endpoint no params",
			key: Key{
				Endpoint: "/issue/SPARK-12345",
			},
			want: "jira:issue/SPARK-12345",
		},
		{
			name: "endpoint with query params",
			key: Key{
				Endpoint: "/issue/SPARK-12345",
				QueryParams: url.Values{
					"expand": []string{"comments"},
				},
			},
			want: "jira:issue/SPARK-12345:expand=comments",
		},
		{
			name: "multiple query params sorted",
			key: Key{
				Endpoint: "/search",
				QueryParams: url.Values{
					"startAt":    []string{"0"},
					"maxResults": []string{"50"},
					"jql":        []string{"project=SPARK"},
				},
			},
			want: "jira:search:jql=project=SPARK:maxResults=50:startAt=0",
		},
		{
			name: "trailing slash trimmed",
			key: Key{
				Endpoint: "/issue/KAFKA-1/",
			},
			want: "jira:issue/KAFKA-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestKey_Determinism ensures same input always produces same key
func TestKey_Determinism(t *testing.T) {
	key := Key{
		Endpoint: "/issue/HADOOP-100",
		QueryParams: url.Values{
			"expand": []string{"comments"},
			"fields": []string{"summary,description"},
		},
	}

	first := key.String()
	for i := 0; i < 50; i++ {
		if got := key.String(); got != first {
			t.Fatalf("Key not deterministic: %q vs %q", got, first)
		}
	}
}
