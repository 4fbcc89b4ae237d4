package proto

import "testing"

func TestDecodeChat(t *testing.T) {
	frame := []byte(`{"type":"chat","room":"alice_bob","recipient":"alice","message":"hi","temp_message_id":"tmp-1","unexpected":"dropped"}`)

	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	chat, ok := ev.(Chat)
	if !ok {
		t.Fatalf("expected Chat, got %T", ev)
	}
	if chat.Recipient != "alice" || chat.Message != "hi" || chat.TempMessageID != "tmp-1" || chat.Room != "alice_bob" {
		t.Fatalf("unexpected chat: %+v", chat)
	}
}

func TestDecodeTypingAndReadReceipt(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"typing","room":"alice_bob","is_typing":true}`))
	if err != nil {
		t.Fatalf("decode typing: %v", err)
	}
	typing, ok := ev.(Typing)
	if !ok || !typing.IsTyping || typing.Room != "alice_bob" {
		t.Fatalf("unexpected typing: %+v (%T)", ev, ev)
	}

	ev, err = Decode([]byte(`{"type":"read_receipt","message_id":"m-7"}`))
	if err != nil {
		t.Fatalf("decode read receipt: %v", err)
	}
	receipt, ok := ev.(ReadReceipt)
	if !ok || receipt.MessageID != "m-7" {
		t.Fatalf("unexpected receipt: %+v (%T)", ev, ev)
	}
}

func TestDecodeCallSignalVariants(t *testing.T) {
	for _, kind := range []string{"offer", "answer", "ice", "call", "missed_call", "end_call", "reject"} {
		ev, err := Decode([]byte(`{"type":"` + kind + `","to":"alice"}`))
		if err != nil {
			t.Fatalf("decode %s: %v", kind, err)
		}
		sig, ok := ev.(CallSignal)
		if !ok || sig.Kind != kind || sig.To != "alice" {
			t.Fatalf("unexpected %s signal: %+v (%T)", kind, ev, ev)
		}
	}
}

func TestDecodeCallSignalTargetAliases(t *testing.T) {
	// Browsers send "to"; older clients sent "to_user". Both address the target.
	ev, err := Decode([]byte(`{"type":"call","to_user":"alice"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sig := ev.(CallSignal); sig.To != "alice" {
		t.Fatalf("expected to_user accepted, got %+v", sig)
	}

	ev, err = Decode([]byte(`{"type":"call","to":"bob","to_user":"alice"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sig := ev.(CallSignal); sig.To != "bob" {
		t.Fatalf("expected to to win over to_user, got %+v", sig)
	}
}

func TestDecodeCallSignalKeepsOpaquePayload(t *testing.T) {
	frame := []byte(`{"type":"offer","to":"alice","offer":{"sdp":"v=0...","type":"offer"},"is_group_call":false}`)

	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sig := ev.(CallSignal)
	if string(sig.Offer) != `{"sdp":"v=0...","type":"offer"}` {
		t.Fatalf("offer payload must be preserved verbatim, got %s", sig.Offer)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"teleport","somewhere":"else"}`))
	if err != nil {
		t.Fatalf("unknown types must decode to Ignored, got error: %v", err)
	}
	ignored, ok := ev.(Ignored)
	if !ok || ignored.Type != "teleport" {
		t.Fatalf("expected Ignored{teleport}, got %+v (%T)", ev, ev)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{`not json`, `42`, `{"no":"type"}`, `{"type":""}`} {
		if _, err := Decode([]byte(frame)); err == nil {
			t.Errorf("expected error for %q", frame)
		}
	}
}

func TestEncodeOutboundShapes(t *testing.T) {
	payload, err := Encode(NewUserStatus("bob", true))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"user_status","username":"bob","is_online":true}`
	if string(payload) != want {
		t.Fatalf("unexpected encoding: %s", payload)
	}

	payload, err = Encode(NewOnlineUsersList(nil))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want = `{"type":"online_users_list","users":[]}`
	if string(payload) != want {
		t.Fatalf("nil users must encode as empty list: %s", payload)
	}
}
