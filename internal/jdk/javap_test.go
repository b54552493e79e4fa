package jdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

const workerJavap = `Compiled from "Worker.java"
public class com.example.Worker extends java.lang.Thread implements java.lang.Runnable, java.lang.Comparable<com.example.Worker> {
  private static final int MAX;
  protected java.util.Map<java.lang.String, java.lang.Integer> counts;
  public com.example.Worker();
  public void run();
    descriptor: ()V
  public int compareTo(com.example.Worker);
  public static <T> java.util.List<T> copy(java.util.List<? extends T>, int) throws java.io.IOException;
  static {};
}
`

func TestParseClassStructure(t *testing.T) {
	cs, ok := ParseClassStructure(workerJavap).(*ClassStructure)
	require.True(t, ok)

	assert.Equal(t, "Worker.java", cs.SourceFile)
	assert.Equal(t, "com.example.Worker", cs.ClassName)
	assert.Equal(t, "class", cs.ClassKind)
	assert.Equal(t, []string{"public"}, cs.Modifiers)
	assert.Equal(t, "java.lang.Thread", cs.Superclass)
	assert.Equal(t, []string{"java.lang.Runnable", "java.lang.Comparable<com.example.Worker>"}, cs.Interfaces)

	require.Len(t, cs.Fields, 2)
	assert.Equal(t, FieldInfo{Name: "MAX", Type: "int", Visibility: "private", Modifiers: []string{"static", "final"}}, cs.Fields[0])
	assert.Equal(t, "java.util.Map<java.lang.String, java.lang.Integer>", cs.Fields[1].Type)
	assert.Equal(t, "protected", cs.Fields[1].Visibility)

	require.Len(t, cs.Methods, 4)
	ctor := cs.Methods[0]
	assert.True(t, ctor.Constructor)
	assert.Equal(t, "com.example.Worker", ctor.Name)
	assert.Empty(t, ctor.Parameters)

	assert.Equal(t, "run", cs.Methods[1].Name)
	assert.Equal(t, "void", cs.Methods[1].ReturnType)
	assert.Equal(t, "()V", cs.Methods[1].Descriptor)

	assert.Equal(t, []string{"com.example.Worker"}, cs.Methods[2].Parameters)

	cp := cs.Methods[3]
	assert.Equal(t, "copy", cp.Name)
	assert.Equal(t, "java.util.List<T>", cp.ReturnType)
	assert.Equal(t, []string{"static"}, cp.Modifiers)
	assert.Equal(t, []string{"java.util.List<? extends T>", "int"}, cp.Parameters)
	assert.Equal(t, []string{"java.io.IOException"}, cp.Throws)
}

func TestParseClassStructure_Interface(t *testing.T) {
	out := "Compiled from \"Api.java\"\npublic interface com.example.Api extends java.io.Closeable, java.lang.Iterable<java.lang.String> {\n" +
		"  public abstract void close() throws java.io.IOException;\n}\n"
	cs, ok := ParseClassStructure(out).(*ClassStructure)
	require.True(t, ok)

	assert.Equal(t, "interface", cs.ClassKind)
	assert.Empty(t, cs.Superclass)
	assert.Equal(t, []string{"java.io.Closeable", "java.lang.Iterable<java.lang.String>"}, cs.Interfaces)
	require.Len(t, cs.Methods, 1)
	assert.Equal(t, []string{"abstract"}, cs.Methods[0].Modifiers)
}

func TestParseClassStructure_VerboseInnerClasses(t *testing.T) {
	out := `Classfile /tmp/Outer.class
  Last modified Jan 4, 2024; size 512 bytes
public class com.example.Outer
  minor version: 0
  major version: 61
  flags: (0x0021) ACC_PUBLIC, ACC_SUPER
Constant pool:
   #1 = Methodref          #2.#3          // java/lang/Object."<init>":()V
{
  public com.example.Outer();
    descriptor: ()V
    flags: (0x0001) ACC_PUBLIC
    Code:
      stack=1, locals=1, args_size=1
         0: aload_0
         1: invokespecial #1                  // Method java/lang/Object."<init>":()V
         4: return
}
SourceFile: "Outer.java"
InnerClasses:
  public static #7= #5 of #2;             // Inner=class com/example/Outer$Inner of class com/example/Outer
`
	cs, ok := ParseClassStructure(out).(*ClassStructure)
	require.True(t, ok)
	assert.Equal(t, "com.example.Outer", cs.ClassName)
	require.Len(t, cs.Methods, 1)
	assert.True(t, cs.Methods[0].Constructor)
	assert.Equal(t, "()V", cs.Methods[0].Descriptor)
	assert.Equal(t, []string{"com.example.Outer$Inner"}, cs.InnerClasses)
}

func TestParseClassStructure_NoDeclaration(t *testing.T) {
	rec := ParseClassStructure("Error: class not found: com.example.Missing\n")
	f, ok := rec.(*core.Failure)
	require.True(t, ok)
	assert.Equal(t, core.ErrCatParse, f.Category)
}

func TestClassStructure_Prepare(t *testing.T) {
	inv, err := NewClassStructure().Prepare(Args{
		"class_name":             "java.lang.String",
		"classpath":              "/opt/app/lib/app.jar",
		"show_fields":            true,
		"show_method_signatures": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"javap", "-cp", "/opt/app/lib/app.jar", "-p", "-s", "java.lang.String"}, inv.Spec.Argv())
	assert.Equal(t, 5*60, int(inv.TTL.Seconds()))

	for _, bad := range []string{"", "-version", "java.lang.String extra"} {
		_, err := NewClassStructure().Prepare(Args{"class_name": bad})
		assert.True(t, core.IsCategory(err, core.ErrCatValidation), "class_name %q", bad)
	}
}
