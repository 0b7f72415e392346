package orchestrator

// ResetSQL recreates the public schema and reinstalls the exec procedures.
// It runs over a direct connection; API destinations use a Resetter instead.
// The trailing NOTIFY asks a PostgREST-style gateway to reload its schema
// cache so the procedures become callable.
const ResetSQL = `DROP SCHEMA IF EXISTS public CASCADE;
CREATE SCHEMA public;
GRANT ALL ON SCHEMA public TO public;

CREATE OR REPLACE FUNCTION public.exec_sql(sql text)
RETURNS jsonb
LANGUAGE plpgsql
SECURITY DEFINER
AS $fn$
DECLARE
  affected bigint;
BEGIN
  EXECUTE sql;
  GET DIAGNOSTICS affected = ROW_COUNT;
  RETURN jsonb_build_object('success', true, 'rows_affected', affected);
EXCEPTION WHEN OTHERS THEN
  RETURN jsonb_build_object('success', false, 'error', SQLERRM);
END;
$fn$;

CREATE OR REPLACE FUNCTION public.exec_query(sql text)
RETURNS jsonb
LANGUAGE plpgsql
SECURITY DEFINER
AS $fn$
DECLARE
  result jsonb;
BEGIN
  EXECUTE format('SELECT coalesce(jsonb_agg(q), ''[]''::jsonb) FROM (%s) q', sql) INTO result;
  RETURN result;
END;
$fn$;

NOTIFY pgrst, 'reload schema';`
