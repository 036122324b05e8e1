package history

import (
	"reflect"
	"testing"

	"github.com/nexuscore/agentcore/pkg/content"
)

func user(text string) content.Content {
	return content.Content{Role: content.RoleUser, Parts: []content.Part{content.TextPart(text)}}
}

func modelText(text string) content.Content {
	return content.Content{Role: content.RoleModel, Parts: []content.Part{content.TextPart(text)}}
}

func emptyModel() content.Content {
	return content.Content{Role: content.RoleModel, Parts: []content.Part{content.ThoughtPartOf("s", "d")}}
}

func fn(id, name string) content.Content {
	return content.Content{Role: content.RoleFunction, Parts: []content.Part{content.FunctionResponsePartOf(id, name, nil)}}
}

func TestCurateDropsInvalidRunAndPrecedingUser(t *testing.T) {
	in := []content.Content{
		user("hi"),
		emptyModel(),
		user("again"),
		modelText("hello"),
	}
	got := Curate(in)
	want := []content.Content{user("again"), modelText("hello")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestCurateKeepsValidRun(t *testing.T) {
	in := []content.Content{user("hi"), modelText("hello"), fn("c1", "tool")}
	got := Curate(in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %#v want %#v", got, in)
	}
}

func TestCurateIdempotent(t *testing.T) {
	in := []content.Content{
		user("hi"),
		emptyModel(),
		user("again"),
		modelText("hello"),
	}
	once := Curate(in)
	twice := Curate(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("curation not idempotent: %#v vs %#v", once, twice)
	}
}

func TestCurateNoPrecedingUserDropsOnlyRun(t *testing.T) {
	in := []content.Content{emptyModel(), user("hi"), modelText("hello")}
	got := Curate(in)
	want := []content.Content{user("hi"), modelText("hello")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}
